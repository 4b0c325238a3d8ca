package engine

import (
	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/result"
)

// Loader negotiation structure tags and versions.
const (
	StructTypeLoaderInfo     = 1
	StructTypeRuntimeRequest = 3

	LoaderInfoStructVersion     = 1
	RuntimeRequestStructVersion = 1

	// LoaderInterfaceVersion is the only loader interface version the runtime speaks.
	LoaderInterfaceVersion = 1
)

// LoaderInfo is what the loader offers during negotiation.
type LoaderInfo struct {
	StructType          int
	StructVersion       uint32
	MinInterfaceVersion uint32
	MaxInterfaceVersion uint32
	MinAPIVersion       Version
	MaxAPIVersion       Version
}

// GetInstanceProcAddrFunc resolves entrypoints. A nil instance resolves only the global ones.
type GetInstanceProcAddrFunc func(inst Instance, name string) (any, error)

// RuntimeRequest is filled in by the runtime during negotiation.
type RuntimeRequest struct {
	StructType              int
	StructVersion           uint32
	RuntimeInterfaceVersion uint32
	RuntimeAPIVersion       Version
	GetInstanceProcAddr     GetInstanceProcAddrFunc
}

// NegotiateLoaderRuntimeInterface agrees on an interface version with the loader and hands it
// the entrypoint resolver.
//
// Parameters:
//   - info: the loader's offer
//   - req: receives the runtime's interface version, API version and resolver
//
// Returns:
//   - result.Result: Success, or InitializationFailed if either structure is malformed or the
//     offered interface range excludes version 1
func NegotiateLoaderRuntimeInterface(info *LoaderInfo, req *RuntimeRequest) result.Result {
	log := common.ComponentLogger("negotiate")
	if info == nil || info.StructType != StructTypeLoaderInfo || info.StructVersion != LoaderInfoStructVersion {
		log.Warn("loader info rejected", "info", info)
		return result.InitializationFailed
	}
	if req == nil || req.StructType != StructTypeRuntimeRequest || req.StructVersion != RuntimeRequestStructVersion {
		log.Warn("runtime request rejected")
		return result.InitializationFailed
	}
	if info.MinInterfaceVersion > LoaderInterfaceVersion || info.MaxInterfaceVersion < LoaderInterfaceVersion {
		log.Warn("no common loader interface version", "min", info.MinInterfaceVersion, "max", info.MaxInterfaceVersion)
		return result.InitializationFailed
	}

	req.GetInstanceProcAddr = GetInstanceProcAddr
	req.RuntimeInterfaceVersion = LoaderInterfaceVersion
	req.RuntimeAPIVersion = CurrentAPIVersion
	log.Info("loader negotiated", "interface", LoaderInterfaceVersion, "api_version", CurrentAPIVersion)
	return result.Success
}
