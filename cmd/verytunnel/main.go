package main

import (
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/profile"
	"go.uber.org/zap"

	"github.com/e1732a364fed/tunnel_simple/netLayer"
	"github.com/e1732a364fed/tunnel_simple/transportLayer"
	"github.com/e1732a364fed/tunnel_simple/tunnel"
	"github.com/e1732a364fed/tunnel_simple/utils"

	_ "github.com/e1732a364fed/tunnel_simple/quicLayer"
	_ "github.com/e1732a364fed/tunnel_simple/sshLayer"
	_ "github.com/e1732a364fed/tunnel_simple/tlsLayer"
)

var (
	configFileName string
	logFileName    string
	startMProf     bool
	listVariants   bool
	showVersion    bool

	allRelays  []*tunnel.Relay
	allClosers []interface{ Close() error }
)

const defaultConfFn = "tunnel.toml"

func init() {
	flag.StringVar(&configFileName, "c", defaultConfFn, "config file name")
	flag.StringVar(&logFileName, "lf", "", "log file name; empty means stdout only")
	flag.BoolVar(&startMProf, "mp", false, "start memory pprof")
	flag.BoolVar(&listVariants, "sv", false, "list supported transport variants and exit")
	flag.BoolVar(&showVersion, "v", false, "print the version string then exit")
}

func main() {
	os.Exit(mainFunc())
}

func mainFunc() int {
	flag.Parse()

	if showVersion {
		printVersion()
		return 0
	}

	if listVariants {
		transportLayer.PrintAllProtocolNames()
		return 0
	}

	if startMProf {
		p := profile.Start(profile.MemProfile, profile.MemProfileRate(1), profile.NoShutdownHook)
		defer p.Stop()
	}

	standardConf, err := tunnel.LoadTomlConfFile(configFileName)
	if err != nil {
		log.Printf("can not load config file: %s\n", err)
		return -1
	}

	if appConf := standardConf.App; appConf != nil {
		if appConf.LogLevel != nil {
			utils.LogLevel = *appConf.LogLevel
		}
		if logFileName == "" {
			logFileName = appConf.LogFile
		}
	}
	utils.InitLog(logFileName)

	for _, lc := range standardConf.Listen {
		relay, err := runListen(lc)
		if err != nil {
			if ce := utils.CanLogErr("failed to start relay"); ce != nil {
				ce.Write(zap.Error(err))
			}
			return -1
		}
		allRelays = append(allRelays, relay)
	}

	for _, dc := range standardConf.Dial {
		if err := runDial(dc); err != nil {
			if ce := utils.CanLogErr("failed to start local forward"); ce != nil {
				ce.Write(zap.Error(err))
			}
			return -1
		}
	}

	if len(allRelays) == 0 && len(standardConf.Dial) == 0 {
		fmt.Println("no valid listen or dial settings in config. Exit now.")
		return -1
	}

	{
		osSignals := make(chan os.Signal, 1)
		signal.Notify(osSignals, os.Interrupt, os.Kill, syscall.SIGTERM)
		<-osSignals

		utils.Info("tunnel_simple closing...")
		for _, relay := range allRelays {
			relay.Stop()
		}
		for _, closer := range allClosers {
			closer.Close()
		}
	}
	return 0
}

func runListen(lc *tunnel.ListenConf) (*tunnel.Relay, error) {
	creator, err := transportLayer.GetCreator(lc.Protocol)
	if err != nil {
		return nil, err
	}

	addr, err := netLayer.NewAddrByHostPort(lc.GetAddrStr())
	if err != nil {
		return nil, err
	}
	if lc.Protocol == "quic" {
		addr.Network = "udp"
	}

	tconf := &transportLayer.Conf{
		Addr:     addr,
		Host:     lc.Host,
		Token:    lc.Token,
		Insecure: lc.Insecure,
	}

	if lc.TLSCert != "" && lc.TLSKey != "" {
		cert, err := tls.LoadX509KeyPair(lc.TLSCert, lc.TLSKey)
		if err != nil {
			return nil, utils.ErrInErr{ErrDesc: "failed to load cert files", ErrDetail: err}
		}
		tconf.TlsConf = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	server, err := creator.NewServerFromConf(tconf)
	if err != nil {
		return nil, err
	}

	resolver, err := netLayer.NewResolver(lc.DnsUpstream, netLayer.PolicyAny)
	if err != nil {
		return nil, err
	}

	relay := tunnel.NewRelay(server, resolver, lc.ToRelayConf())
	relay.AddEventSink(tunnel.LogEventSink)

	if err = relay.Start(); err != nil {
		return nil, err
	}

	if ce := utils.CanLogInfo("relay listening"); ce != nil {
		ce.Write(zap.String("variant", lc.Protocol))
	}
	return relay, nil
}

// runDial 启动一个 ssh -L 式的本地端口转发入口: 在 LocalListen 上监听,
// 每个入站连接都经由中继隧道转发到 Target.
func runDial(dc *tunnel.DialConf) error {
	client, err := tunnel.NewClient(dc.ToClientConf())
	if err != nil {
		return err
	}
	client.AddEventSink(tunnel.LogEventSink)

	target, err := netLayer.NewAddrByHostPort(dc.Target)
	if err != nil {
		return utils.ErrInErr{ErrDesc: "bad target addr", ErrDetail: err}
	}

	listener, err := net.Listen("tcp", dc.LocalListen)
	if err != nil {
		return utils.ErrInErr{ErrDesc: "failed to listen locally", ErrDetail: err}
	}
	allClosers = append(allClosers, listener, client)

	if ce := utils.CanLogInfo("local forward listening"); ce != nil {
		ce.Write(zap.String("addr", dc.LocalListen), zap.String("variant", dc.Protocol))
	}

	go func() {
		for {
			lc, err := listener.Accept()
			if err != nil {
				return
			}

			go func() {
				stream, err := client.OpenTunnel(target)
				if err != nil {
					if ce := utils.CanLogWarn("open tunnel failed"); ce != nil {
						ce.Write(zap.Error(err))
					}
					lc.Close()
					return
				}
				netLayer.RelayPipe(lc, stream, 0)
			}()
		}
	}()

	return nil
}
