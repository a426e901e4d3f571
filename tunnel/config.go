package tunnel

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/asaskevich/govalidator"
	"github.com/e1732a364fed/tunnel_simple/netLayer"
	"github.com/e1732a364fed/tunnel_simple/utils"
)

//标准配置，使用toml格式。 https://toml.io/en/
type StandardConf struct {
	App    *AppConf      `toml:"app"`
	Listen []*ListenConf `toml:"listen"`
	Dial   []*DialConf   `toml:"dial"`
}

type AppConf struct {
	LogLevel *int   `toml:"loglevel"` //需要为指针, 否则无法判断0到底是未给出的默认值还是显式声明的0
	LogFile  string `toml:"logfile"`
}

type CommonConf struct {
	Protocol string `toml:"protocol"` //ssh, tls, quic
	Host     string `toml:"host"`     //域名. tls的sni / ssh的user
	IP       string `toml:"ip"`       //给出Host后该项可以省略
	Port     int    `toml:"port"`
	Token    string `toml:"token"`
	Insecure bool   `toml:"insecure"`
}

func (cc *CommonConf) GetAddrStr() string {
	if cc.IP != "" {
		return cc.IP + ":" + strconv.Itoa(cc.Port)
	}
	return cc.Host + ":" + strconv.Itoa(cc.Port)
}

//配置的基本合法性检查. 只检查格式, 不做任何网络动作.
func (cc *CommonConf) verify() error {
	if _, ok := transportVariantNames[cc.Protocol]; !ok {
		return utils.ErrInErr{ErrDesc: "unknown transport variant", Data: cc.Protocol}
	}
	if cc.Port <= 0 || cc.Port > 65535 {
		return utils.ErrInErr{ErrDesc: "invalid port", Data: cc.Port}
	}
	if cc.IP != "" && !govalidator.IsIP(cc.IP) {
		return utils.ErrInErr{ErrDesc: "invalid ip", Data: cc.IP}
	}
	if cc.Host != "" && !govalidator.IsDNSName(cc.Host) {
		return utils.ErrInErr{ErrDesc: "invalid host", Data: cc.Host}
	}
	if cc.IP == "" && cc.Host == "" {
		return utils.ErrInErr{ErrDesc: "either host or ip required"}
	}
	return nil
}

var transportVariantNames = map[string]struct{}{
	"ssh": {}, "tls": {}, "quic": {},
}

type ListenConf struct {
	CommonConf

	TLSCert string `toml:"cert"`
	TLSKey  string `toml:"key"`

	MaxTunnelCount int    `toml:"max_tunnel_count"`
	DnsUpstream    string `toml:"dns_upstream"` //中继端解析所用的dns服务器, host:port, 可省略

	ControlReadTimeoutSec int `toml:"control_timeout"`
	ResolveTimeoutSec     int `toml:"resolve_timeout"`
	ConnectTimeoutSec     int `toml:"connect_timeout"`
	LingerTimeoutSec      int `toml:"linger_timeout"`
}

func (lc *ListenConf) Verify() error {
	return lc.verify()
}

func (lc *ListenConf) ToRelayConf() RelayConf {
	return RelayConf{
		MaxTunnelCount:     lc.MaxTunnelCount,
		ControlReadTimeout: time.Duration(lc.ControlReadTimeoutSec) * time.Second,
		ResolveTimeout:     time.Duration(lc.ResolveTimeoutSec) * time.Second,
		ConnectTimeout:     time.Duration(lc.ConnectTimeoutSec) * time.Second,
		LingerTimeout:      time.Duration(lc.LingerTimeoutSec) * time.Second,
	}
}

type DialConf struct {
	CommonConf

	Utls string `toml:"utls"` //utls指纹名, 空则用标准tls

	ResolveMode string `toml:"resolve_mode"` //local / remote, 默认remote
	RemoteOnly  bool   `toml:"remote_only"`  //承诺解析只发生在中继端

	//本地入口: 在此地址监听, 每个入站连接转发到 Target
	LocalListen string `toml:"local_listen"`
	Target      string `toml:"target"` //host:port
}

func (dc *DialConf) Verify() error {
	if err := dc.verify(); err != nil {
		return err
	}
	switch dc.ResolveMode {
	case "", "local", "remote":
	default:
		return utils.ErrInErr{ErrDesc: "invalid resolve_mode", Data: dc.ResolveMode}
	}
	return nil
}

func (dc *DialConf) GetResolveMode() netLayer.ResolveMode {
	if dc.ResolveMode == "local" {
		return netLayer.ResolveLocal
	}
	return netLayer.ResolveRemote
}

func (dc *DialConf) GetPolicy() netLayer.DnsPolicy {
	if dc.RemoteOnly {
		return netLayer.PolicyRemoteOnly
	}
	return netLayer.PolicyAny
}

func (dc *DialConf) ToClientConf() ClientConf {
	return ClientConf{
		RelayAddr:       dc.GetAddrStr(),
		Variant:         dc.Protocol,
		Mode:            dc.GetResolveMode(),
		Policy:          dc.GetPolicy(),
		Host:            dc.Host,
		Token:           dc.Token,
		Insecure:        dc.Insecure,
		UtlsFingerprint: dc.Utls,
	}
}

func LoadTomlConfStr(str string) (c StandardConf, err error) {
	_, err = toml.Decode(str, &c)
	if err != nil {
		return
	}

	for _, lc := range c.Listen {
		if err = lc.Verify(); err != nil {
			return
		}
	}
	for _, dc := range c.Dial {
		if err = dc.Verify(); err != nil {
			return
		}
	}
	return
}

func LoadTomlConfFile(fileNamePath string) (StandardConf, error) {
	bs, err := os.ReadFile(fileNamePath)
	if err != nil {
		return StandardConf{}, utils.ErrInErr{ErrDesc: "can't open config file", ErrDetail: err}
	}
	return LoadTomlConfStr(string(bs))
}
