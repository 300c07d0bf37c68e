// Package config 提供 flowcore 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → FLOWCORE_ 前缀环境变量 的顺序加载，
// FileWatcher 以轮询方式监听配置文件，serve 命令借此在运行期
// 重新加载日志级别。
package config
