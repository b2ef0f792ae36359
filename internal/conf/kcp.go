package conf

import "fmt"

// Kcp configures the optional reliable sibling transport (internal/tunnel/kcp):
// a KCP ARQ session carrying one or more smux streams, offered alongside the
// core single-datagram UDP tunnel for callers that need ordered, lossless
// delivery instead of this transport's best-effort semantics.
type Kcp struct {
	DataShards   int `yaml:"dataShards"`
	ParityShards int `yaml:"parityShards"`
	Smuxbuf      int `yaml:"smuxbuf"`
	Streambuf    int `yaml:"streambuf"`
}

func (k *Kcp) setDefaults() {
	if k.DataShards == 0 && k.ParityShards == 0 {
		k.DataShards = 10
		k.ParityShards = 3
	}
	if k.Smuxbuf == 0 {
		k.Smuxbuf = 4194304
	}
	if k.Streambuf == 0 {
		k.Streambuf = 2097152
	}
}

func (k *Kcp) validate() []error {
	var errs []error
	if k.DataShards < 0 || k.ParityShards < 0 {
		errs = append(errs, fmt.Errorf("kcp: dataShards and parityShards must be non-negative"))
	}
	return errs
}
