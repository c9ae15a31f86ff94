// Package tlsutil 提供访问后端 API 的默认 HTTP 传输层：
// TLS 1.2+、仅 AEAD 密码套件、按主机复用连接池。
package tlsutil
