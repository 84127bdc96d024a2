package fixed

import (
	"iter"

	"sheetdoc/pkg/contract"
)

// Options 为固定容量 Batcher 的可选配置。
type Options struct {
	// Size: 每批最大行数。<=0 时采用默认 contract.DefaultBatchSize。
	Size int `yaml:"size"`
}

// Batcher 按固定容量切批。
type Batcher struct {
	size int
}

// New 创建固定容量 Batcher。
func New(opts *Options) *Batcher {
	size := contract.DefaultBatchSize
	if opts != nil && opts.Size > 0 {
		size = opts.Size
	}
	return &Batcher{size: size}
}

// Size 返回生效的批容量。
func (b *Batcher) Size() int { return b.size }

// Batches 返回惰性批序列：
// - 每批至多 size 条连续行，按源顺序；
// - 末批可以更少；空输入不产生批；
// - 批内 Rows 为输入切片的子切片（只读使用）。
func (b *Batcher) Batches(h contract.Header, rows []contract.Row) iter.Seq[contract.Batch] {
	size := b.size
	return func(yield func(contract.Batch) bool) {
		idx := 0
		for lo := 0; lo < len(rows); lo += size {
			hi := lo + size
			if hi > len(rows) {
				hi = len(rows)
			}
			if !yield(contract.Batch{BatchIndex: idx, Header: h, Rows: rows[lo:hi:hi]}) {
				return
			}
			idx++
		}
	}
}

// Count 返回 n 行在当前容量下的批数。
func (b *Batcher) Count(n int) int { return Count(n, b.size) }

// Count 返回 n 行按容量 size 切分的批数，即 ceil(n/size)。
func Count(n, size int) int {
	if n <= 0 {
		return 0
	}
	if size <= 0 {
		size = contract.DefaultBatchSize
	}
	return (n + size - 1) / size
}

var _ contract.Batcher = (*Batcher)(nil)
