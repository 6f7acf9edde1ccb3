// Package safe hands out storage without any local outliving its frame.
package safe

type pair struct{ a, b int }

func byValue() [3]int {
	array := [3]int{1, 2, 3}
	return array
}

func composite() *pair {
	return &pair{1, 2}
}

func allocated() *int {
	return new(int)
}

func literal() []int {
	return []int{1, 2, 3}
}

func made() []int {
	return make([]int, 3)
}

func boxed() holder {
	return holder{n: 1}
}

type holder struct{ n int }

func loaded() int {
	count := 0
	inc := func() { count++ }
	inc()
	return count
}

func fill(dst []int) {
	dst[0], dst[1], dst[2] = 1, 2, 3
}

func sum() int {
	array := [3]int{1, 2, 3}
	s := array[:]
	return s[0] + s[1] + s[2]
}
