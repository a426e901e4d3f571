/*
Package tunnel_simple 是一个前向代理隧道. 客户端与中继先完成加密握手,
再在加密信道内发送一条类似CONNECT的控制消息, 此后中继成为盲目的字节管道.

# Structure 本项目结构

utils -> netLayer -> transportLayer -> { sshLayer, tlsLayer, quicLayer } -> tunnel -> cmd/verytunnel

utils 提供日志、错误包装与缓冲池; netLayer 提供地址、拨号、双向转发与
域名解析; transportLayer 定义加密传输变体的公共接口, 三个变体子包在各自的
init 中注册; tunnel 是核心: 客户端入口、控制消息编解码、中继状态机、
事件与计数; cmd/verytunnel 是可执行入口.

# Chain

中继侧的 调用链 是 Relay.Start -> Server.StartListen -> handleStream ->
{ ReadRequest , Resolver.ResolveHere , DialFunc , netLayer.RelayPipe }

客户端侧是 Client.OpenTunnel -> { Resolver.ResolveForDial , getStream ->
DialSession/OpenStream , WriteRequest , ReadAck }

# Privacy

隧道建立后, 任何代码路径都不解析所转发的字节; 日志与事件中不出现
目标的域名、ip或端口. 域名解析位置由客户端控制, remote 模式下客户端
不做任何本地查询 (见 netLayer 的 Resolver).
*/
package tunnel_simple
