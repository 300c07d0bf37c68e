// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 flowcore 提供集中式的 TracerProvider 和 MeterProvider 配置。
// 执行器的节点 span 通过 Providers.Tracer 获取 tracer。
// 当遥测功能禁用时，使用全局 noop 实现，不连接任何外部服务。
package telemetry
