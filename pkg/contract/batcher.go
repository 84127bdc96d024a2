package contract

import "iter"

// DefaultBatchSize: 默认批容量。
const DefaultBatchSize = 5

// Batcher: 将有序数据行切分为固定容量的批（惰性序列）。
// 约束：
//  1. 不重排、不丢失、不重复；
//  2. 每批至多 size 条连续行，末批可以更少；
//  3. 按序拼接全部批的 Rows 等于输入。
type Batcher interface {
	Batches(h Header, rows []Row) iter.Seq[Batch]
	// Count 返回 n 行将产生的批数。
	Count(n int) int
}
