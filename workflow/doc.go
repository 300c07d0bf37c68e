/*
Package workflow 提供工作流图的校验、调度与执行。

# 概述

工作流是一个由节点（步骤）和带守卫条件的有向边组成的 DAG，按 owner
（agent）存储。执行器每次运行先加载图、做 Kahn 拓扑排序并检查步数上限，
再按顺序逐个节点求值，把每一步作为 Step 流式产出。

# 核心类型

  - Graph / Node / Edge: 图定义，支持 JSON 与 YAML
  - Store / Definition : 按 owner 加载与保存图，MemoryStore 为进程内实现
  - Executor           : Stream / Run / Plan
  - Step / Result      : 单步轨迹与合并后的运行结果
  - Dispatcher         : 工具调用协作者
  - ContextAssembler   : 记忆上下文组装协作者

# 执行语义

  - 没有入边的节点总是可执行；有入边的节点至少一条边触发才执行，
    否则以 no_upstream 跳过
  - 节点自身的条件在 context、memory、upstream 上求值，为假时以
    condition 跳过
  - 边条件在源节点输出 {"output": ...} 上求值，求值失败视为不触发
  - 工具失败时先产出 status=error 的步骤，随后终止运行

条件表达式由 workflow/condition 子包解析，仅允许受限的字面量、
比较、布尔与下标访问。
*/
package workflow
