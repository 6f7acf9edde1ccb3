// Package dangling collects functions whose locals outlive their frame.
package dangling

import "fmt"

func getArray() *[3]int {
	array := [3]int{1, 2, 3}
	return &array
}

func getSlice() []int {
	array := [3]int{1, 2, 3}
	return array[:]
}

func firstElem() *int {
	array := [3]int{1, 2, 3}
	return &array[0]
}

type pair struct{ a, b int }

func fieldOf() *int {
	p := pair{1, 2}
	return &p.b
}

func param(n int) *int {
	return &n
}

func counter() func() int {
	count := 0
	return func() int {
		count++
		return count
	}
}

var leaked *int

func leak() {
	x := 42
	leaked = &x
}

type holder struct{ p *int }

func wrapped() holder {
	w := 1
	return holder{p: &w}
}

func inSlice() []*int {
	y := 2
	return []*int{&y}
}

type registry struct{ last *int }

var reg registry

func globalField() {
	z := 3
	reg.last = &z
}

func printArray(arr []int) {
	for i := 0; i < 3; i++ {
		fmt.Printf("%d ", arr[i])
	}
	fmt.Println()
}

func main() {
	printArray(getSlice())
	fmt.Println(*getArray(), *firstElem(), *fieldOf(), *param(1), counter()())
	leak()
	globalField()
	fmt.Println(*wrapped().p, *inSlice()[0], *reg.last)
}
