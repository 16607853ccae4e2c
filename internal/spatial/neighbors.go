package spatial

import (
	"slices"

	"github.com/uber/h3-go/v4"
)

// CellSet：格子集合；输出时统一排序以保证确定性
type CellSet map[h3.Cell]struct{}

func NewCellSet(cells ...h3.Cell) CellSet {
	s := make(CellSet, len(cells))
	for _, c := range cells {
		s[c] = struct{}{}
	}
	return s
}

func (s CellSet) Add(c h3.Cell) { s[c] = struct{}{} }

func (s CellSet) Has(c h3.Cell) bool {
	_, ok := s[c]
	return ok
}

// Sorted：按索引数值升序（与十六进制编号串的字典序一致）
func (s CellSet) Sorted() []h3.Cell {
	out := make([]h3.Cell, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Neighbors：六个相邻格子（五边形格子为五个），按数值排序
func Neighbors(c h3.Cell) []h3.Cell {
	disk := h3.GridDisk(c, 1)
	out := make([]h3.Cell, 0, len(disk))
	for _, n := range disk {
		if n != c && n != 0 {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out
}

// IsEdgeCell：任一相邻格子不在 frontier 中即为边缘格子
func IsEdgeCell(c h3.Cell, frontier CellSet) bool {
	for _, n := range Neighbors(c) {
		if !frontier.Has(n) {
			return true
		}
	}
	return false
}
