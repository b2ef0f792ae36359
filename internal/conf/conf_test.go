package conf

import "testing"

func TestLogSetDefaults(t *testing.T) {
	l := Log{}
	l.setDefaults()
	if l.Level != "info" {
		t.Errorf("expected Level=info, got %s", l.Level)
	}
}

func TestLogValidateUnknownLevel(t *testing.T) {
	l := Log{Level: "verbose"}
	errs := l.validate()
	if len(errs) == 0 {
		t.Error("expected error for unknown log level")
	}
}

func TestListenSetDefaults(t *testing.T) {
	l := Listen{}
	l.setDefaults()
	if l.Addr != "udp://0.0.0.0:5556" {
		t.Errorf("expected default listen addr, got %s", l.Addr)
	}
}

func TestListenValidateRejectsWrongScheme(t *testing.T) {
	l := Listen{Addr: "tcp://0.0.0.0:5556"}
	errs := l.validate()
	if len(errs) == 0 {
		t.Error("expected error for non-udp scheme")
	}
}

func TestListenValidateAcceptsUDP(t *testing.T) {
	l := Listen{Addr: "udp://127.0.0.1:5556"}
	errs := l.validate()
	if len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
	if l.URL == nil || l.URL.Host != "127.0.0.1:5556" {
		t.Errorf("expected parsed URL host 127.0.0.1:5556, got %v", l.URL)
	}
}

func TestConnectSetDefaults(t *testing.T) {
	c := Connect{}
	c.setDefaults()
	if c.TimeoutSeconds != 3 {
		t.Errorf("expected default timeout 3s, got %d", c.TimeoutSeconds)
	}
}

func TestConnectValidateMissingHost(t *testing.T) {
	c := Connect{Addr: "udp://", TimeoutSeconds: 3}
	errs := c.validate()
	if len(errs) == 0 {
		t.Error("expected error for missing host")
	}
}

func TestKcpSetDefaults(t *testing.T) {
	k := Kcp{}
	k.setDefaults()
	if k.DataShards != 10 || k.ParityShards != 3 {
		t.Errorf("expected default shard counts 10/3, got %d/%d", k.DataShards, k.ParityShards)
	}
	if k.Smuxbuf == 0 || k.Streambuf == 0 {
		t.Error("expected non-zero buffer defaults")
	}
}

func TestKcpValidateRejectsNegativeShards(t *testing.T) {
	k := Kcp{DataShards: -1}
	if errs := k.validate(); len(errs) == 0 {
		t.Error("expected error for negative shard count")
	}
}

func TestConnectValidateNegativeTimeout(t *testing.T) {
	c := Connect{Addr: "udp://127.0.0.1:5556", TimeoutSeconds: -1}
	errs := c.validate()
	found := false
	for _, e := range errs {
		if e.Error() == "connect.timeout_seconds must be positive" {
			found = true
		}
	}
	if !found {
		t.Error("expected timeout validation error")
	}
}
