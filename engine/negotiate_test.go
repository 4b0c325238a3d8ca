package engine

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-xr/engine/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loaderInfo() *LoaderInfo {
	return &LoaderInfo{
		StructType:          StructTypeLoaderInfo,
		StructVersion:       LoaderInfoStructVersion,
		MinInterfaceVersion: 1,
		MaxInterfaceVersion: 1,
		MinAPIVersion:       MakeVersion(1, 0, 0),
		MaxAPIVersion:       MakeVersion(1, 0x3ff, 0xfff),
	}
}

func runtimeRequest() *RuntimeRequest {
	return &RuntimeRequest{StructType: StructTypeRuntimeRequest, StructVersion: RuntimeRequestStructVersion}
}

func TestNegotiate(t *testing.T) {
	req := runtimeRequest()
	require.Equal(t, result.Success, NegotiateLoaderRuntimeInterface(loaderInfo(), req))
	assert.Equal(t, uint32(LoaderInterfaceVersion), req.RuntimeInterfaceVersion)
	assert.Equal(t, CurrentAPIVersion, req.RuntimeAPIVersion)
	require.NotNil(t, req.GetInstanceProcAddr)

	fn, err := req.GetInstanceProcAddr(nil, "xrCreateInstance")
	require.NoError(t, err)
	assert.NotNil(t, fn)
}

func TestNegotiateRejects(t *testing.T) {
	cases := map[string]func(*LoaderInfo, *RuntimeRequest){
		"wrong loader struct":   func(l *LoaderInfo, _ *RuntimeRequest) { l.StructType = StructTypeRuntimeRequest },
		"wrong loader version":  func(l *LoaderInfo, _ *RuntimeRequest) { l.StructVersion = 2 },
		"wrong request struct":  func(_ *LoaderInfo, r *RuntimeRequest) { r.StructType = StructTypeLoaderInfo },
		"interface range above": func(l *LoaderInfo, _ *RuntimeRequest) { l.MinInterfaceVersion, l.MaxInterfaceVersion = 2, 3 },
		"interface range below": func(l *LoaderInfo, _ *RuntimeRequest) { l.MaxInterfaceVersion = 0 },
		"wrong request version": func(_ *LoaderInfo, r *RuntimeRequest) { r.StructVersion = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			info, req := loaderInfo(), runtimeRequest()
			mutate(info, req)
			assert.Equal(t, result.InitializationFailed, NegotiateLoaderRuntimeInterface(info, req))
			assert.Nil(t, req.GetInstanceProcAddr)
		})
	}
	assert.Equal(t, result.InitializationFailed, NegotiateLoaderRuntimeInterface(nil, runtimeRequest()))
}
