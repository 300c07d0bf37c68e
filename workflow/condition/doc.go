// Package condition 实现工作流守卫表达式的受限求值器。
//
// 表达式先经过长度与关键字黑名单的快速拒绝，再由手写的词法/递归下降
// 解析器构建 AST，只允许字面量、变量、属性/下标访问、列表/元组/字典字面量、
// 算术、比较与布尔运算。函数调用会被解析成 callNode 并在白名单遍历中拒绝。
// 求值只读取调用方传入的变量映射，任何运行期错误都转换为
// CONDITION_EVALUATION_FAILED，失败即关闭。
package condition
