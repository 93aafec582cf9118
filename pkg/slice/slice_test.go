// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package slice_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/dlms/pkg/slice"
)

func TestMap(t *testing.T) {
	assert.Nil(t, slice.Map[int, string](nil, strconv.Itoa))
	assert.Equal(t, []string{"1", "2"}, slice.Map([]int{1, 2}, strconv.Itoa))
}

func TestFilter(t *testing.T) {
	input := []int{1, 2, 3, 4}
	even := slice.Filter(input, func(value int) bool { return value%2 == 0 })

	assert.Equal(t, []int{2, 4}, even)
	even[0] = 9
	assert.Equal(t, []int{1, 2, 3, 4}, input)
	assert.Nil(t, slice.Filter(input, func(int) bool { return false }))
}
