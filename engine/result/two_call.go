package result

// TwoCall implements the capacity/count/buffer idiom. The capacity is len(dst).
// A zero capacity only reports the required count and leaves dst untouched; a capacity
// below the required count fails with SizeInsufficient; otherwise src is copied into dst.
//
// Parameters:
//   - dst: caller buffer, may be nil
//   - src: the full list of items
//
// Returns:
//   - int: the required (and, on success, written) count
//   - error: SizeInsufficient when dst is non-empty but too small
func TwoCall[T any](dst, src []T) (int, error) {
	if len(dst) == 0 {
		return len(src), nil
	}
	if len(dst) < len(src) {
		return len(src), Errorf(SizeInsufficient, "capacity %d, need %d", len(dst), len(src))
	}
	copy(dst, src)
	return len(src), nil
}

// TwoCallString applies the idiom to a string including its NUL terminator.
//
// Parameters:
//   - dst: caller byte buffer, may be nil
//   - s: the string to write
//
// Returns:
//   - int: the required byte count including the terminator
//   - error: SizeInsufficient when dst is non-empty but too small
func TwoCallString(dst []byte, s string) (int, error) {
	src := append([]byte(s), 0)
	return TwoCall(dst, src)
}
