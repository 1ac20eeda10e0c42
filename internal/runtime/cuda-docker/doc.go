// Package cudadocker implements the Docker runtime for NVIDIA GPU hosts.
//
// The runtime creates HeartMuLa service containers with GPU access through
// the nvidia container runtime: the CUDA sandbox answers device visibility
// environment and device files, and the shared container assembly in the
// runtime package wires them into the container spec together with the
// service port binding and the models/db mounts.
//
// Instances created by this runtime carry the cuda-docker runtime label
// and are rediscovered from Docker after daemon restarts.
package cudadocker
