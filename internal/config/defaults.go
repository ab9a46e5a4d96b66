package config

import "music-separator/internal/domain"

const (
	largeGPUThresholdGiB = 11.5
	smallGPUThresholdGiB = 8

	defaultChunkSize    = 1000000
	smallGPUChunkSize   = 500000
	defaultOverlapLarge = 0.6
	defaultOverlapSmall = 0.5
)

// DefaultSettings returns first-launch settings for the detected accelerator.
// available is false when no accelerator could be probed.
func DefaultSettings(memoryGiB float64, available bool) domain.Settings {
	settings := domain.Settings{
		ChunkSize:    defaultChunkSize,
		OverlapLarge: defaultOverlapLarge,
		OverlapSmall: defaultOverlapSmall,
	}
	if !available {
		return settings
	}

	switch {
	case memoryGiB > largeGPUThresholdGiB:
		settings.LargeGPU = true
		settings.SingleONNX = false
	case memoryGiB < smallGPUThresholdGiB:
		settings.LargeGPU = false
		settings.SingleONNX = true
		settings.ChunkSize = smallGPUChunkSize
	}
	return settings
}
