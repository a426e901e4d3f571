package netLayer_test

import (
	"testing"

	"github.com/e1732a364fed/tunnel_simple/netLayer"
)

func TestNewAddr(t *testing.T) {
	a, err := netLayer.NewAddrByHostPort("example.test:443")
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	if a.Name != "example.test" || a.Port != 443 || a.IP != nil {
		t.Log("bad parse", a)
		t.FailNow()
	}
	if a.AType() != netLayer.AtypDomain || a.Resolved() {
		t.Log("bad atype")
		t.FailNow()
	}

	a, err = netLayer.NewAddrByHostPort("10.1.2.3:80")
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	if a.Name != "" || a.IP == nil || a.AType() != netLayer.AtypIP4 {
		t.Log("bad parse", a)
		t.FailNow()
	}
	if a.String() != "10.1.2.3:80" {
		t.Log("bad string", a.String())
		t.FailNow()
	}

	a, err = netLayer.NewAddrByHostPort("[::1]:80")
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	if a.AType() != netLayer.AtypIP6 {
		t.Log("bad atype for ipv6")
		t.FailNow()
	}
}
