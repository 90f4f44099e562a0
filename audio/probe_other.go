//go:build !linux

package audio

func platformBackends() []backend {
	return []backend{
		{name: BackendMalgo, open: newMalgoContext},
	}
}
