// Package config 提供 toolbridge 进程的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（TOOLBRIDGE_ 前缀）的顺序叠加；
// FileWatcher 以轮询方式监听档案文件，供服务端在变更后重载工具。
package config
