// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 toolbridge 的调用与步骤 span 提供 TracerProvider（OTLP gRPC 导出）。
// 当遥测功能禁用时，全局 provider 保持 noop，不连接任何外部服务。
package telemetry
