/*
包 metrics 提供基于 Prometheus 的引擎指标采集能力，覆盖
HTTP、工作流、沙箱、工具分发、记忆组装与数据库。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用
promauto.With 绑定调用方传入的 Registerer，测试可使用独立的
Registry。所有指标按 namespace 隔离。

# 主要能力

  - HTTP 指标：请求总数（按路由模式与状态类别）与耗时。
  - 工作流指标：运行总数与耗时（按 status），节点步数（按 tool/status）。
  - 沙箱指标：插件执行总数（success/failed/timeout）与耗时。
  - 分发指标：plugin / remote 两条路由的请求数与耗时。
  - 记忆指标：组装耗时、上下文条数与 Token 数。
  - 数据库指标：活跃/空闲连接数 Gauge、查询耗时 Histogram。
*/
package metrics
