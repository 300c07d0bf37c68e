/*
包 migration 提供基于 golang-migrate 的数据库 Schema 版本化迁移，
支持 PostgreSQL 与 MySQL。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌在 migrations/ 目录下,
表结构与 store 包的 GORM 模型一一对应。SQLite 仅用于开发与测试,
其 Schema 由 store.AutoMigrate 维护, 对 SQLite 调用迁移器会返回
ErrNoSQLMigrations。

# 核心接口与类型

  - Migrator：迁移器接口（Up/Down/Steps/Force/Version/Status/Info/Close）。
  - DefaultMigrator：基于 golang-migrate 与 iofs 源的默认实现,
    迁移日志通过 zap 输出。
  - CLI：命令行输出层, 由 flowcore migrate 子命令使用。
  - NewMigratorFromDatabaseConfig：从应用配置的 database 段创建迁移器。
*/
package migration
