// Package stream 将工作流运行轨迹实时推送给客户端.
//
// Forward 逐步消费执行器产生的惰性轨迹, 不做缓冲: 每个步骤一产生就交给
// Sink. WebSocketSink 以 JSON 帧写出, 首帧 {"status":"started"}, 末帧为
// {"status":"complete"} 或 {"status":"error","detail":...}. Handler 在
// /ws/agents/{agent_id}/run 上接受连接并驱动一次运行.
package stream
