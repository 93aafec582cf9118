// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package slice complements the standard [slices] package with the two
generic helpers the views need.
*/
package slice

// Map transforms every element of input. A nil input yields nil.
func Map[T any, U any](input []T, transform func(T) U) []U {
	if input == nil {
		return nil
	}

	result := make([]U, len(input))
	for index, value := range input {
		result[index] = transform(value)
	}
	return result
}

// Filter keeps the elements for which keep is true, in order.
// The result is a fresh slice and never aliases input.
func Filter[T any](input []T, keep func(T) bool) []T {
	var result []T
	for _, value := range input {
		if keep(value) {
			result = append(result, value)
		}
	}
	return result
}
