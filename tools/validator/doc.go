// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package validator 对请求/响应数据做结构化 Schema 校验。

只覆盖请求体形状检查所需的 JSON Schema 子集：type（array 与 object 区分，
integer 要求整数值）、enum、object 的 required 与 properties 递归、array 的
items 递归，以及 string 的 email / uri 格式。未声明的属性不报错。

类型不匹配时不再向下递归。每个错误携带 path、message、schema 与 value，
path 使用点号与 [index] 表示法，空路径显示为 "(root)"。
*/
package validator
