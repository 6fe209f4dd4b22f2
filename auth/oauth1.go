package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-autohook/core"
)

const (
	SignatureMethod = "HMAC-SHA1"
	OAuthVersion    = "1.0"
	HeaderScheme    = "OAuth"

	protocolPrefix = "oauth_"
)

// Parameters is the flat set of values that takes part in a signature.
type Parameters map[string]string

// Signer produces OAuth 1.0a HMAC-SHA1 Authorization headers. Nonce and
// Timestamp are replaceable so tests can pin them.
type Signer struct {
	Nonce     func() (string, error)
	Timestamp func() string
}

type SignerOption func(*Signer)

func WithNonceFunc(fn func() (string, error)) SignerOption {
	return func(s *Signer) {
		if fn != nil {
			s.Nonce = fn
		}
	}
}

func WithTimestampFunc(fn func() string) SignerOption {
	return func(s *Signer) {
		if fn != nil {
			s.Timestamp = fn
		}
	}
}

func NewSigner(opts ...SignerOption) *Signer {
	signer := &Signer{Nonce: RandomNonce, Timestamp: UnixTimestamp}
	for _, opt := range opts {
		if opt != nil {
			opt(signer)
		}
	}
	return signer
}

// RandomNonce returns 16 random bytes, base64 encoded.
func RandomNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func UnixTimestamp() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}

// AuthorizationHeader signs one request. body carries form fields only; a
// JSON payload is not part of the signature and must be passed as nil.
func (s *Signer) AuthorizationHeader(method, rawURL string, credential core.Credential, body any) (string, error) {
	params, err := s.BuildParameters(rawURL, credential, body)
	if err != nil {
		return "", err
	}
	base, err := BuildBaseString(rawURL, method, BuildParameterString(params))
	if err != nil {
		return "", err
	}
	signature := Sign(base, credential.ConsumerSecret(), credential.AccessTokenSecret())
	return RenderHeader(params, signature), nil
}

// BuildParameters merges query parameters, body fields and protocol fields.
// The first writer of a key wins, except for protocol fields which always
// overwrite.
func (s *Signer) BuildParameters(rawURL string, credential core.Credential, body any) (Parameters, error) {
	parsed, err := parseAbsoluteURL(rawURL)
	if err != nil {
		return nil, err
	}
	fields, err := ParseBodyFields(body)
	if err != nil {
		return nil, err
	}

	params := Parameters{}
	query := parsed.Query()
	for _, key := range sortedKeys(query) {
		if values := query[key]; len(values) > 0 {
			params[key] = values[0]
		}
	}
	for _, key := range sortedKeys(fields) {
		if _, exists := params[key]; !exists {
			params[key] = fields[key]
		}
	}

	nonce, err := s.nonce()
	if err != nil {
		return nil, err
	}
	params["oauth_consumer_key"] = credential.ConsumerKey()
	params["oauth_token"] = credential.AccessToken()
	params["oauth_nonce"] = nonce
	params["oauth_timestamp"] = s.timestamp()
	params["oauth_signature_method"] = SignatureMethod
	params["oauth_version"] = OAuthVersion
	return params, nil
}

func (s *Signer) nonce() (string, error) {
	if s != nil && s.Nonce != nil {
		return s.Nonce()
	}
	return RandomNonce()
}

func (s *Signer) timestamp() string {
	if s != nil && s.Timestamp != nil {
		return s.Timestamp()
	}
	return UnixTimestamp()
}

// BuildParameterString sorts keys byte-wise and joins key=encoded(value)
// pairs with '&'.
func BuildParameterString(params Parameters) string {
	keys := sortedKeys(params)
	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+Encode(params[key]))
	}
	return strings.Join(pairs, "&")
}

// BuildBaseString returns METHOD&enc(origin+path)&enc(parameterString).
func BuildBaseString(rawURL, method, parameterString string) (string, error) {
	parsed, err := parseAbsoluteURL(rawURL)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(method) + "&" + Encode(baseURL(parsed)) + "&" + Encode(parameterString), nil
}

// Sign computes base64(HMAC-SHA1(enc(consumerSecret)&enc(tokenSecret), base)).
func Sign(baseString, consumerSecret, tokenSecret string) string {
	key := Encode(consumerSecret) + "&" + Encode(tokenSecret)
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(baseString))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// RenderHeader adds the signature and renders the oauth_ prefixed keys as
// an Authorization header value. params is not modified.
func RenderHeader(params Parameters, signature string) string {
	protocol := Parameters{}
	for key, value := range params {
		if strings.HasPrefix(key, protocolPrefix) {
			protocol[key] = value
		}
	}
	protocol["oauth_signature"] = signature

	keys := sortedKeys(protocol)
	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+`="`+Encode(protocol[key])+`"`)
	}
	return HeaderScheme + " " + strings.Join(pairs, ", ")
}

// Encode percent-encodes everything outside A-Z a-z 0-9 - _ . ~ using
// uppercase hex.
func Encode(value string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		c := value[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0F])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == '~':
		return true
	}
	return false
}

// ParseBodyFields accepts nil, a form encoded string or byte slice,
// url.Values, map[string]string, or map[string]any with scalar values.
func ParseBodyFields(body any) (map[string]string, error) {
	switch typed := body.(type) {
	case nil:
		return map[string]string{}, nil
	case string:
		return parseForm(typed)
	case []byte:
		return parseForm(string(typed))
	case url.Values:
		return firstValues(typed), nil
	case map[string]string:
		out := make(map[string]string, len(typed))
		for key, value := range typed {
			out[key] = value
		}
		return out, nil
	case map[string]any:
		out := make(map[string]string, len(typed))
		for key, value := range typed {
			scalar, ok := scalarString(value)
			if !ok {
				return nil, core.NewError(core.KindTypeConstraint, fmt.Sprintf("auth: body field %q must be a scalar value, got %T", key, value))
			}
			out[key] = scalar
		}
		return out, nil
	default:
		return nil, core.NewError(core.KindTypeConstraint, fmt.Sprintf("auth: unsupported body type %T", body))
	}
}

func parseForm(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]string{}, nil
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, core.NewError(core.KindTypeConstraint, fmt.Sprintf("auth: body is not form encoded: %v", err))
	}
	return firstValues(values), nil
}

func firstValues(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for key, items := range values {
		if len(items) > 0 {
			out[key] = items[0]
		}
	}
	return out
}

func scalarString(value any) (string, bool) {
	switch typed := value.(type) {
	case string:
		return typed, true
	case bool:
		return strconv.FormatBool(typed), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(typed), true
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	default:
		return "", false
	}
}

func parseAbsoluteURL(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, core.NewError(core.KindTypeConstraint, fmt.Sprintf("auth: %q is not an absolute url", rawURL))
	}
	return parsed, nil
}

// baseURL is the lowercased origin, without a default port, followed by the
// escaped path.
func baseURL(parsed *url.URL) string {
	scheme := strings.ToLower(parsed.Scheme)
	host := strings.ToLower(parsed.Hostname())
	if port := parsed.Port(); port != "" && !isDefaultPort(scheme, port) {
		host = host + ":" + port
	}
	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
