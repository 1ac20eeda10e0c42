// Package cpudocker implements the Docker runtime for hosts without a
// supported GPU.
//
// Containers run the cpu image variant under the standard runc runtime
// with no device access. Generation is slow but functional; sequential
// offload and quantization flags are irrelevant here because the model
// lives in system memory anyway.
package cpudocker
