// Package core holds the autohook data model, the remote error taxonomy and
// its classifier, configuration, and the narrow contracts through which the
// lifecycle controller reaches the transport, tunnel and listener. Adapter
// packages depend on core; core depends on none of them.
package core
