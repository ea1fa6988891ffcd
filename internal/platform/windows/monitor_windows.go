//go:build windows

package windows

import (
	"fmt"
	"syscall"
	"unsafe"

	"github.com/openctrol/agent/internal/platform"
)

// dxgiOutputDesc matches DXGI_OUTPUT_DESC.
type dxgiOutputDesc struct {
	DeviceName        [32]uint16
	Left              int32
	Top               int32
	Right             int32
	Bottom            int32
	AttachedToDesktop int32
	Rotation          uint32
	Monitor           uintptr
}

const (
	dxgiOutputGetDesc     = 7
	dxgiAdapterEnumOutput = 7
	dxgiDeviceGetAdapter  = 7

	d3dDriverTypeHardware = 1
	d3dFeatureLevel11_0   = 0xb000
	d3d11SDKVersion       = 7
)

var (
	iidIDXGIDevice = comGUID{0x54ec77fa, 0x1377, 0x44e6, [8]byte{0x8c, 0x32, 0x88, 0xfd, 0x5f, 0x44, 0xc8, 0x4c}}

	d3d11DLL              = syscall.NewLazyDLL("d3d11.dll")
	procD3D11CreateDevice = d3d11DLL.NewProc("D3D11CreateDevice")
)

// DXGIMonitorSource enumerates displays via DXGI output enumeration,
// the same COM walk the capture engine uses to set up desktop
// duplication.
type DXGIMonitorSource struct{}

func NewDXGIMonitorSource() *DXGIMonitorSource { return &DXGIMonitorSource{} }

func (s *DXGIMonitorSource) Enumerate() ([]platform.MonitorInfo, error) {
	var device, context uintptr
	featureLevel := uint32(d3dFeatureLevel11_0)
	var actualLevel uint32

	hr, _, _ := procD3D11CreateDevice.Call(
		0, uintptr(d3dDriverTypeHardware), 0, 0,
		uintptr(unsafe.Pointer(&featureLevel)), 1, uintptr(d3d11SDKVersion),
		uintptr(unsafe.Pointer(&device)), uintptr(unsafe.Pointer(&actualLevel)),
		uintptr(unsafe.Pointer(&context)),
	)
	if int32(hr) < 0 {
		return nil, fmt.Errorf("D3D11CreateDevice: 0x%08X", uint32(hr))
	}
	defer comRelease(context)
	defer comRelease(device)

	var dxgiDevice uintptr
	if _, err := comCall(device, 0, uintptr(unsafe.Pointer(&iidIDXGIDevice)), uintptr(unsafe.Pointer(&dxgiDevice))); err != nil {
		return nil, fmt.Errorf("QueryInterface IDXGIDevice: %w", err)
	}
	defer comRelease(dxgiDevice)

	var adapter uintptr
	if _, err := comCall(dxgiDevice, dxgiDeviceGetAdapter, uintptr(unsafe.Pointer(&adapter))); err != nil {
		return nil, fmt.Errorf("IDXGIDevice::GetAdapter: %w", err)
	}
	defer comRelease(adapter)

	var monitors []platform.MonitorInfo
	for i := 0; ; i++ {
		var output uintptr
		hr, _, _ := syscall.SyscallN(comVtblFn(adapter, dxgiAdapterEnumOutput), adapter, uintptr(i), uintptr(unsafe.Pointer(&output)))
		if int32(hr) < 0 {
			break
		}

		var desc dxgiOutputDesc
		hr, _, _ = syscall.SyscallN(comVtblFn(output, dxgiOutputGetDesc), output, uintptr(unsafe.Pointer(&desc)))
		comRelease(output)
		if int32(hr) < 0 || desc.AttachedToDesktop == 0 {
			continue
		}

		name := syscall.UTF16ToString(desc.DeviceName[:])
		monitors = append(monitors, platform.MonitorInfo{
			ID:      fmt.Sprintf("DISPLAY%d", i),
			Name:    name,
			Width:   int(desc.Right - desc.Left),
			Height:  int(desc.Bottom - desc.Top),
			X:       int(desc.Left),
			Y:       int(desc.Top),
			Primary: desc.Left == 0 && desc.Top == 0,
		})
	}

	return monitors, nil
}

// GDIMonitorSource enumerates displays via EnumDisplayMonitors, the
// independent second source the de-duplication rule in the
// specification's data model needs: DXGI output enumeration can miss
// a display that GDI still reports during a driver transition (and
// vice versa), so the capture engine merges both rather than trusting
// either alone.
type GDIMonitorSource struct{}

func NewGDIMonitorSource() *GDIMonitorSource { return &GDIMonitorSource{} }

type gdiRect struct {
	Left, Top, Right, Bottom int32
}

type gdiMonitorInfoEx struct {
	CbSize    uint32
	RcMonitor gdiRect
	RcWork    gdiRect
	Flags     uint32
	Device    [32]uint16
}

const monitorInfoFPrimary = 0x1

var (
	procEnumDisplayMonitors = user32.NewProc("EnumDisplayMonitors")
	procGetMonitorInfoW     = user32.NewProc("GetMonitorInfoW")
)

func (s *GDIMonitorSource) Enumerate() ([]platform.MonitorInfo, error) {
	var monitors []platform.MonitorInfo

	cb := syscall.NewCallback(func(hMonitor uintptr, hdc uintptr, rect *gdiRect, lParam uintptr) uintptr {
		var info gdiMonitorInfoEx
		info.CbSize = uint32(unsafe.Sizeof(info))
		r1, _, _ := procGetMonitorInfoW.Call(hMonitor, uintptr(unsafe.Pointer(&info)))
		if r1 == 0 {
			return 1 // keep enumerating
		}

		name := syscall.UTF16ToString(info.Device[:])
		monitors = append(monitors, platform.MonitorInfo{
			ID:      name,
			Name:    name,
			Width:   int(info.RcMonitor.Right - info.RcMonitor.Left),
			Height:  int(info.RcMonitor.Bottom - info.RcMonitor.Top),
			X:       int(info.RcMonitor.Left),
			Y:       int(info.RcMonitor.Top),
			Primary: info.Flags&monitorInfoFPrimary != 0,
		})
		return 1
	})

	r1, _, err := procEnumDisplayMonitors.Call(0, 0, cb, 0)
	if r1 == 0 {
		return nil, fmt.Errorf("EnumDisplayMonitors: %w", err)
	}

	return monitors, nil
}
