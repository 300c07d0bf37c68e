/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动与优雅关闭。

# 核心类型

  - Manager：HTTP 服务器管理器，持有 http.Server、net.Listener
    与异步错误通道，提供 Start/Shutdown/Wait 等生命周期方法。
  - Config：服务器配置，包含监听地址、读写超时、空闲超时、
    最大请求头大小与优雅关闭超时。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - 优雅关闭：Shutdown 在配置的超时内完成请求排空与连接释放。
  - 等待退出：Wait 在 ctx 结束（通常由 signal.NotifyContext 触发）
    或服务异常时执行关闭。
  - 状态查询：IsRunning/Addr/ListenAddr 提供运行状态与监听地址查询。
*/
package server
