/*
包 database 提供基于 GORM 的数据库连接与连接池管理。

# 概述

Open 按驱动名（postgres、mysql、sqlite）打开连接, SQL 慢查询与错误
日志通过 zap 输出。sqlite 使用纯 Go 的 glebarez/sqlite, 无需 cgo。

# 核心类型

  - PoolManager：连接池管理器，持有 GORM DB 实例与底层 sql.DB，
    提供 DB()、Ping()、Stats()、Close() 等生命周期方法。
  - PoolConfig：连接池配置，包含最大空闲连接数、最大打开连接数、
    连接最大生命周期、空闲超时与健康检查间隔。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - 健康检查：后台定时探活，并把打开/空闲连接数上报到 metrics。
  - 查询耗时：InstrumentQueries 为 create/query/update/delete/row/raw
    注册 GORM 回调, 按操作记录耗时直方图。
  - 事务管理：WithTransactionRetry 对死锁、序列化失败等瞬时错误
    做指数退避重试。
*/
package database
