package seeding

// Ref points at the entrant finishing at Place in source Group of the previous stage.
type Ref struct {
	Place int `json:"place"`
	Group int `json:"group"`
}

// Seeding maps: group number -> qualification ranks, in slot order.

// Regulation table 3: 32 entrants into eight groups of four.
var seed32w4 = map[int][]int{
	1: {1, 9, 24, 32},
	2: {8, 16, 17, 25},
	3: {7, 15, 18, 26},
	4: {6, 14, 19, 27},
	5: {5, 13, 20, 28},
	6: {4, 12, 21, 29},
	7: {3, 11, 22, 30},
	8: {2, 10, 23, 31},
}

// Regulation table 4: 16 entrants into four groups of four.
var seed16w4 = map[int][]int{
	1: {1, 5, 12, 16},
	2: {3, 7, 10, 14},
	3: {2, 6, 11, 15},
	4: {4, 8, 9, 13},
}

var seed8w4 = map[int][]int{
	1: {1, 4, 5, 8},
	2: {2, 3, 6, 7},
}

var seed4 = map[int][]int{
	1: {1, 2, 3, 4},
}

// Regulation table 6: 32 entrants into four groups of eight.
var seed32w8 = map[int][]int{
	1: {1, 5, 9, 13, 17, 21, 25, 29},
	2: {2, 6, 10, 14, 18, 22, 26, 30},
	3: {3, 7, 11, 15, 19, 23, 27, 31},
	4: {4, 8, 12, 16, 20, 24, 28, 32},
}

var seed16w8 = map[int][]int{
	1: {1, 3, 5, 7, 9, 11, 13, 15},
	2: {2, 4, 6, 8, 10, 12, 14, 16},
}

var seed8w8 = map[int][]int{
	1: {1, 2, 3, 4, 5, 6, 7, 8},
}

// Progress maps: target group -> (place, source group), in slot order.

var progress8to4 = map[int][]Ref{
	1: {{1, 1}, {1, 5}, {2, 6}, {2, 2}},
	2: {{1, 7}, {1, 3}, {2, 8}, {2, 4}},
	3: {{1, 8}, {1, 4}, {2, 7}, {2, 3}},
	4: {{1, 6}, {1, 2}, {2, 1}, {2, 5}},
}

var progress4to2 = map[int][]Ref{
	1: {{1, 1}, {1, 2}, {2, 3}, {2, 4}},
	2: {{1, 3}, {1, 4}, {2, 1}, {2, 2}},
}

var progress2toFinal = map[int][]Ref{
	1: {{1, 1}, {1, 2}, {2, 1}, {2, 2}},
}

var progress4to2w8 = map[int][]Ref{
	1: {{1, 1}, {2, 1}, {3, 4}, {4, 4}, {1, 2}, {2, 2}, {3, 3}, {4, 3}},
	2: {{1, 3}, {2, 3}, {3, 2}, {4, 2}, {1, 4}, {2, 4}, {3, 1}, {4, 1}},
}

var progress2toFinalW8 = map[int][]Ref{
	1: {{1, 1}, {2, 1}, {3, 1}, {4, 1}, {1, 2}, {2, 2}, {3, 2}, {4, 2}},
}
