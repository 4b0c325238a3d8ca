package swapchain

type SwapchainBuilderOption func(*swapchainImpl)

// WithImageCount sets how many images the swapchain holds. Static swapchains always hold one.
//
// Parameters:
//   - count: the image count, 1 to MaxImages
//
// Returns:
//   - SwapchainBuilderOption: a function that sets the count
func WithImageCount(count int) SwapchainBuilderOption {
	return func(s *swapchainImpl) {
		s.count = count
	}
}

// WithAllocator sets the allocator that creates the backing images.
//
// Parameters:
//   - allocator: the image allocator
//
// Returns:
//   - SwapchainBuilderOption: a function that sets the allocator
func WithAllocator(allocator ImageAllocator) SwapchainBuilderOption {
	return func(s *swapchainImpl) {
		if allocator != nil {
			s.allocator = allocator
		}
	}
}
