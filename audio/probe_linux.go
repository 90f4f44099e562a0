//go:build linux

package audio

// malgo is the block-callback backend; the native pulse protocol client is the
// fallback when miniaudio cannot bring up a context.
func platformBackends() []backend {
	return []backend{
		{name: BackendMalgo, open: newMalgoContext},
		{name: BackendPulse, open: newPulseContext},
	}
}
