//go:build windows

package audio

import (
	"fmt"
	"runtime"
	"syscall"
	"unsafe"

	"github.com/go-ole/go-ole"
)

// COM interfaces here are plain vtable-style COM (IMMDevice and
// friends are not IDispatch automatable), so method calls go through
// comCall rather than go-ole's oleutil helpers. go-ole itself only
// carries the CoInitializeEx/CoCreateInstance/QueryInterface/IUnknown
// lifecycle.
var (
	clsidMMDeviceEnumerator = ole.NewGUID("{BCDE0395-E52F-467C-8E3D-C4579291692E}")
	iidIMMDeviceEnumerator  = ole.NewGUID("{A95664D2-9614-4F35-A746-DE8DB63617E6}")
	iidIMMDeviceCollection  = ole.NewGUID("{0BD7A1BE-7A1A-44DB-8397-CC5392387B5E}")
	iidIMMDevice            = ole.NewGUID("{D666063F-1587-4E43-81F1-B948E807363F}")
	iidIPropertyStore       = ole.NewGUID("{886D8EEB-8CF2-4446-8D02-CDBA1DBDCF99}")

	// IPolicyConfig is undocumented but the only way to change the
	// default audio endpoint from user-mode code; widely relied on by
	// audio utilities for lack of a supported alternative.
	clsidPolicyConfigClient = ole.NewGUID("{870AF99C-171D-4F9E-AF0D-E63DF40C2BC9}")
	iidIPolicyConfigVista   = ole.NewGUID("{568B9108-44BF-40B4-9006-86AFE5B5A620}")

	pkeyDeviceFriendlyName = propertyKey{
		fmtID: comGUID{0xa45c254e, 0xdf1c, 0x4efd, [8]byte{0x80, 0x20, 0x67, 0xd1, 0x46, 0xa8, 0x50, 0xe0}},
		pid:   14,
	}
)

const (
	eRender  = 0
	eConsole = 0

	deviceStateActive = 0x1

	mmdeEnumAudioEndpoints       = 3
	mmdeGetDefaultAudioEndpoint  = 4
	mmdeGetDevice                = 5
	mmdcGetCount                 = 3
	mmdcItem                     = 4
	mmdOpenPropertyStore         = 4
	mmdGetID                     = 5
	propstoreGetValue            = 5
	policyConfigSetDefaultEndpoint = 11
)

// propertyKey matches PROPERTYKEY's in-memory layout.
type propertyKey struct {
	fmtID comGUID
	pid   uint32
}

// propVariant matches the leading fields of PROPVARIANT enough to
// read a VT_LPWSTR string value, the only variant type this package
// reads.
type propVariant struct {
	vt       uint16
	wReserved1, wReserved2, wReserved3 uint16
	val      uintptr
	padding  uintptr
}

const vtLPWSTR = 31

// WindowsProvider implements Provider against the Windows Core Audio
// MMDevice API. It never touches capture or input state; the worst
// failure mode here is a stale device list, not a broken session.
type WindowsProvider struct{}

func NewWindowsProvider() *WindowsProvider { return &WindowsProvider{} }

func (p *WindowsProvider) State() (State, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		return State{}, fmt.Errorf("audio: initialize COM: %w", err)
	}
	defer ole.CoUninitialize()

	enum, err := newDeviceEnumerator()
	if err != nil {
		return State{}, err
	}
	defer comRelease(enum)

	var defaultID string
	if defDev, err := getDefaultEndpoint(enum); err == nil {
		defaultID, _ = getDeviceID(defDev)
		comRelease(defDev)
	}

	devices, err := enumerateDevices(enum)
	if err != nil {
		return State{}, err
	}

	return State{ActiveDeviceID: defaultID, Devices: devices}, nil
}

func (p *WindowsProvider) SetDevice(deviceID string) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		return fmt.Errorf("audio: initialize COM: %w", err)
	}
	defer ole.CoUninitialize()

	return setDefaultEndpoint(deviceID)
}

// SetSessionRouting has no supported target: Windows exposes no public
// API to bind a single audio session to a device distinct from the
// machine's default endpoint, so the change always applies system-wide.
// The response reports both applied and requested scope so callers are
// never misled into believing the routing is session-scoped.
func (p *WindowsProvider) SetSessionRouting(sessionID, deviceID string) (string, error) {
	if err := p.SetDevice(deviceID); err != nil {
		return "", err
	}
	return "system-wide", nil
}

func newDeviceEnumerator() (uintptr, error) {
	unk, err := ole.CoCreateInstance(clsidMMDeviceEnumerator, nil, ole.CLSCTX_ALL, iidIMMDeviceEnumerator)
	if err != nil {
		return 0, fmt.Errorf("audio: create device enumerator: %w", err)
	}
	return uintptr(unsafe.Pointer(unk)), nil
}

func getDefaultEndpoint(enum uintptr) (uintptr, error) {
	var dev uintptr
	hr, _ := comCall(enum, mmdeGetDefaultAudioEndpoint, uintptr(eRender), uintptr(eConsole), uintptr(unsafe.Pointer(&dev)))
	if int32(hr) < 0 {
		return 0, fmt.Errorf("audio: GetDefaultAudioEndpoint: 0x%08X", uint32(hr))
	}
	return dev, nil
}

func enumerateDevices(enum uintptr) ([]Device, error) {
	var collection uintptr
	hr, _ := comCall(enum, mmdeEnumAudioEndpoints, uintptr(eRender), uintptr(deviceStateActive), uintptr(unsafe.Pointer(&collection)))
	if int32(hr) < 0 {
		return nil, fmt.Errorf("audio: EnumAudioEndpoints: 0x%08X", uint32(hr))
	}
	defer comRelease(collection)

	var count uint32
	if hr, _ := comCall(collection, mmdcGetCount, uintptr(unsafe.Pointer(&count))); int32(hr) < 0 {
		return nil, fmt.Errorf("audio: IMMDeviceCollection::GetCount: 0x%08X", uint32(hr))
	}

	devices := make([]Device, 0, count)
	for i := uint32(0); i < count; i++ {
		var dev uintptr
		if hr, _ := comCall(collection, mmdcItem, uintptr(i), uintptr(unsafe.Pointer(&dev))); int32(hr) < 0 {
			continue
		}

		id, _ := getDeviceID(dev)
		name, err := getDeviceFriendlyName(dev)
		if err != nil {
			name = id
		}
		comRelease(dev)

		devices = append(devices, Device{ID: id, Name: name})
	}
	return devices, nil
}

func getDeviceID(dev uintptr) (string, error) {
	var ptr uintptr
	hr, _ := comCall(dev, mmdGetID, uintptr(unsafe.Pointer(&ptr)))
	if int32(hr) < 0 {
		return "", fmt.Errorf("audio: IMMDevice::GetId: 0x%08X", uint32(hr))
	}
	defer ole.CoTaskMemFree(ptr)
	return utf16PtrToString(ptr), nil
}

func getDeviceFriendlyName(dev uintptr) (string, error) {
	var store uintptr
	hr, _ := comCall(dev, mmdOpenPropertyStore, uintptr(0x00000000), uintptr(unsafe.Pointer(&store)))
	if int32(hr) < 0 {
		return "", fmt.Errorf("audio: IMMDevice::OpenPropertyStore: 0x%08X", uint32(hr))
	}
	defer comRelease(store)

	var pv propVariant
	hr, _ = comCall(store, propstoreGetValue, uintptr(unsafe.Pointer(&pkeyDeviceFriendlyName)), uintptr(unsafe.Pointer(&pv)))
	if int32(hr) < 0 || pv.vt != vtLPWSTR {
		return "", fmt.Errorf("audio: IPropertyStore::GetValue(FriendlyName): 0x%08X", uint32(hr))
	}
	return utf16PtrToString(pv.val), nil
}

func setDefaultEndpoint(deviceID string) error {
	unk, err := ole.CoCreateInstance(clsidPolicyConfigClient, nil, ole.CLSCTX_ALL, iidIPolicyConfigVista)
	if err != nil {
		return fmt.Errorf("audio: create policy config client: %w", err)
	}
	policy := uintptr(unsafe.Pointer(unk))
	defer comRelease(policy)

	idPtr, err := syscall.UTF16PtrFromString(deviceID)
	if err != nil {
		return fmt.Errorf("audio: encode device id: %w", err)
	}

	for _, role := range []uintptr{0, 1, 2} { // eConsole, eMultimedia, eCommunications
		hr, _ := comCall(policy, policyConfigSetDefaultEndpoint, uintptr(unsafe.Pointer(idPtr)), role)
		if int32(hr) < 0 {
			return fmt.Errorf("audio: SetDefaultEndpoint(role=%d): 0x%08X", role, uint32(hr))
		}
	}
	return nil
}

func utf16PtrToString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	var out []uint16
	for i := 0; ; i++ {
		c := *(*uint16)(unsafe.Pointer(ptr + uintptr(i)*2))
		if c == 0 {
			break
		}
		out = append(out, c)
	}
	return syscall.UTF16ToString(out)
}

var _ Provider = (*WindowsProvider)(nil)
