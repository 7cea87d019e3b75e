//go:build opencl

package opencl

/*
#cgo LDFLAGS: -lOpenCL
#define CL_TARGET_OPENCL_VERSION 120
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#include <stdlib.h>
#ifdef __APPLE__
#include <OpenCL/opencl.h>
#else
#include <CL/cl.h>
#endif

static const char* bicgstab_cl_error_string(cl_int status) {
	switch (status) {
	case CL_SUCCESS: return "CL_SUCCESS";
	case CL_DEVICE_NOT_FOUND: return "CL_DEVICE_NOT_FOUND";
	case CL_DEVICE_NOT_AVAILABLE: return "CL_DEVICE_NOT_AVAILABLE";
	case CL_COMPILER_NOT_AVAILABLE: return "CL_COMPILER_NOT_AVAILABLE";
	case CL_MEM_OBJECT_ALLOCATION_FAILURE: return "CL_MEM_OBJECT_ALLOCATION_FAILURE";
	case CL_OUT_OF_RESOURCES: return "CL_OUT_OF_RESOURCES";
	case CL_OUT_OF_HOST_MEMORY: return "CL_OUT_OF_HOST_MEMORY";
	case CL_PROFILING_INFO_NOT_AVAILABLE: return "CL_PROFILING_INFO_NOT_AVAILABLE";
	case CL_MEM_COPY_OVERLAP: return "CL_MEM_COPY_OVERLAP";
	case CL_BUILD_PROGRAM_FAILURE: return "CL_BUILD_PROGRAM_FAILURE";
	case CL_EXEC_STATUS_ERROR_FOR_EVENTS_IN_WAIT_LIST: return "CL_EXEC_STATUS_ERROR_FOR_EVENTS_IN_WAIT_LIST";
	case CL_INVALID_VALUE: return "CL_INVALID_VALUE";
	case CL_INVALID_DEVICE_TYPE: return "CL_INVALID_DEVICE_TYPE";
	case CL_INVALID_PLATFORM: return "CL_INVALID_PLATFORM";
	case CL_INVALID_DEVICE: return "CL_INVALID_DEVICE";
	case CL_INVALID_CONTEXT: return "CL_INVALID_CONTEXT";
	case CL_INVALID_QUEUE_PROPERTIES: return "CL_INVALID_QUEUE_PROPERTIES";
	case CL_INVALID_COMMAND_QUEUE: return "CL_INVALID_COMMAND_QUEUE";
	case CL_INVALID_HOST_PTR: return "CL_INVALID_HOST_PTR";
	case CL_INVALID_MEM_OBJECT: return "CL_INVALID_MEM_OBJECT";
	case CL_INVALID_BINARY: return "CL_INVALID_BINARY";
	case CL_INVALID_BUILD_OPTIONS: return "CL_INVALID_BUILD_OPTIONS";
	case CL_INVALID_PROGRAM: return "CL_INVALID_PROGRAM";
	case CL_INVALID_PROGRAM_EXECUTABLE: return "CL_INVALID_PROGRAM_EXECUTABLE";
	case CL_INVALID_KERNEL_NAME: return "CL_INVALID_KERNEL_NAME";
	case CL_INVALID_KERNEL_DEFINITION: return "CL_INVALID_KERNEL_DEFINITION";
	case CL_INVALID_KERNEL: return "CL_INVALID_KERNEL";
	case CL_INVALID_ARG_INDEX: return "CL_INVALID_ARG_INDEX";
	case CL_INVALID_ARG_VALUE: return "CL_INVALID_ARG_VALUE";
	case CL_INVALID_ARG_SIZE: return "CL_INVALID_ARG_SIZE";
	case CL_INVALID_KERNEL_ARGS: return "CL_INVALID_KERNEL_ARGS";
	case CL_INVALID_WORK_DIMENSION: return "CL_INVALID_WORK_DIMENSION";
	case CL_INVALID_WORK_GROUP_SIZE: return "CL_INVALID_WORK_GROUP_SIZE";
	case CL_INVALID_WORK_ITEM_SIZE: return "CL_INVALID_WORK_ITEM_SIZE";
	case CL_INVALID_GLOBAL_OFFSET: return "CL_INVALID_GLOBAL_OFFSET";
	case CL_INVALID_EVENT_WAIT_LIST: return "CL_INVALID_EVENT_WAIT_LIST";
	case CL_INVALID_EVENT: return "CL_INVALID_EVENT";
	case CL_INVALID_OPERATION: return "CL_INVALID_OPERATION";
	case CL_INVALID_BUFFER_SIZE: return "CL_INVALID_BUFFER_SIZE";
	default: return "CL_UNKNOWN_ERROR";
	}
}
*/
import "C"

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"unsafe"

	"github.com/cwbudde/algo-bicgstab/device"
	"github.com/cwbudde/algo-bicgstab/device/driver"
	"github.com/cwbudde/algo-bicgstab/internal/hostmem"
)

// platformNotFoundKHR is CL_PLATFORM_NOT_FOUND_KHR, returned by ICD loaders
// with no installed platform.
const platformNotFoundKHR = -1001

func init() {
	device.Register(Name, &Driver{})
}

// Available reports whether the driver was compiled in.
func Available() bool { return true }

// New returns the OpenCL driver.
func New() (driver.Driver, error) {
	return &Driver{}, nil
}

// Driver enumerates the OpenCL platforms reachable through the ICD loader.
type Driver struct{}

// Info describes the driver.
func (d *Driver) Info() driver.BackendInfo {
	return driver.BackendInfo{
		Name:        Name,
		Version:     "1.2",
		Description: "OpenCL runtime via the system ICD loader",
	}
}

// Platforms lists every installed OpenCL platform.
func (d *Driver) Platforms() ([]driver.Platform, error) {
	var count C.cl_uint

	status := C.clGetPlatformIDs(0, nil, &count)
	if status == platformNotFoundKHR {
		return nil, nil
	}

	if status != C.CL_SUCCESS {
		return nil, statusError("clGetPlatformIDs(count)", status)
	}

	if count == 0 {
		return nil, nil
	}

	ids := make([]C.cl_platform_id, int(count))

	status = C.clGetPlatformIDs(count, &ids[0], nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetPlatformIDs(list)", status)
	}

	out := make([]driver.Platform, 0, len(ids))

	for _, id := range ids {
		info, err := platformInfo(id)
		if err != nil {
			return nil, err
		}

		out = append(out, &platform{id: id, info: info})
	}

	return out, nil
}

type platform struct {
	id   C.cl_platform_id
	info driver.PlatformInfo
}

func (p *platform) Info() driver.PlatformInfo {
	return p.info
}

func (p *platform) Devices(t driver.Type) ([]driver.Device, error) {
	var count C.cl_uint

	want := deviceTypeMask(t)

	status := C.clGetDeviceIDs(p.id, want, 0, nil, &count)
	if status == C.CL_DEVICE_NOT_FOUND || (status == C.CL_SUCCESS && count == 0) {
		return nil, nil
	}

	if status != C.CL_SUCCESS {
		return nil, statusError("clGetDeviceIDs(count)", status)
	}

	ids := make([]C.cl_device_id, int(count))

	status = C.clGetDeviceIDs(p.id, want, count, &ids[0], nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetDeviceIDs(list)", status)
	}

	out := make([]driver.Device, 0, len(ids))

	for _, id := range ids {
		info, err := deviceInfo(id)
		if err != nil {
			return nil, err
		}

		out = append(out, &clDevice{id: id, info: info})
	}

	return out, nil
}

type clDevice struct {
	id   C.cl_device_id
	info driver.DeviceInfo
}

func (d *clDevice) Info() driver.DeviceInfo {
	return d.info
}

func (d *clDevice) NewContext() (driver.Context, error) {
	var status C.cl_int

	ctx := C.clCreateContext(nil, 1, &d.id, nil, nil, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateContext", status)
	}

	return &clContext{id: ctx, dev: d}, nil
}

type clContext struct {
	id       C.cl_context
	dev      *clDevice
	released atomic.Bool
}

// NewQueue always enables profiling; the device package reads timestamps
// from every event.
func (c *clContext) NewQueue(props driver.QueueProperties) (driver.Queue, error) {
	clProps := C.cl_command_queue_properties(C.CL_QUEUE_PROFILING_ENABLE)
	if props&driver.QueueInOrder == 0 {
		clProps |= C.CL_QUEUE_OUT_OF_ORDER_EXEC_MODE_ENABLE
	}

	var status C.cl_int

	q := C.clCreateCommandQueue(c.id, c.dev.id, clProps, &status)
	if status == C.CL_INVALID_QUEUE_PROPERTIES && props&driver.QueueInOrder == 0 {
		// Out-of-order execution is optional; an in-order queue still
		// honours every wait list.
		q = C.clCreateCommandQueue(c.id, c.dev.id, C.CL_QUEUE_PROFILING_ENABLE, &status)
	}

	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateCommandQueue", status)
	}

	return &queue{id: q, ctx: c}, nil
}

func (c *clContext) NewBuffer(flags driver.MemFlags, host []byte) (driver.Buffer, error) {
	if len(host) == 0 {
		return nil, fmt.Errorf("%w: zero-sized buffer", driver.ErrInvalidFlags)
	}

	clFlags, err := memFlags(flags)
	if err != nil {
		return nil, err
	}

	if flags.Has(driver.MemUseHostPtr) && !hostmem.OffHeap {
		return nil, fmt.Errorf("%w: use-host-ptr needs off-heap host memory on this platform", driver.ErrInvalidFlags)
	}

	var ptr unsafe.Pointer
	if flags&(driver.MemUseHostPtr|driver.MemCopyHostPtr) != 0 {
		ptr = unsafe.Pointer(&host[0])
	}

	var status C.cl_int

	mem := C.clCreateBuffer(c.id, clFlags, C.size_t(len(host)), ptr, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateBuffer", status)
	}

	return &buffer{id: mem, ctx: c, size: len(host), flags: flags}, nil
}

func (c *clContext) BuildProgram(source, options string) (driver.Program, string, error) {
	src := C.CString(source)
	defer C.free(unsafe.Pointer(src))

	opts := C.CString(options)
	defer C.free(unsafe.Pointer(opts))

	var status C.cl_int

	length := C.size_t(len(source))

	prog := C.clCreateProgramWithSource(c.id, 1, &src, &length, &status)
	if status != C.CL_SUCCESS {
		return nil, "", statusError("clCreateProgramWithSource", status)
	}

	status = C.clBuildProgram(prog, 1, &c.dev.id, opts, nil, nil)
	log := buildLog(prog, c.dev.id)

	if status != C.CL_SUCCESS {
		C.clReleaseProgram(prog)
		return nil, log, statusError("clBuildProgram", status)
	}

	names, err := kernelNames(prog)
	if err != nil {
		C.clReleaseProgram(prog)
		return nil, log, err
	}

	return &program{id: prog, names: names}, log, nil
}

func (c *clContext) Release() error {
	if c.released.Swap(true) {
		return driver.ErrReleased
	}

	return check("clReleaseContext", C.clReleaseContext(c.id))
}

type buffer struct {
	id       C.cl_mem
	ctx      *clContext
	size     int
	flags    driver.MemFlags
	released atomic.Bool
}

func (b *buffer) Size() int              { return b.size }
func (b *buffer) Flags() driver.MemFlags { return b.flags }

func (b *buffer) Release() error {
	if b.released.Swap(true) {
		return driver.ErrReleased
	}

	return check("clReleaseMemObject", C.clReleaseMemObject(b.id))
}

type program struct {
	id       C.cl_program
	names    []string
	released atomic.Bool
}

func (p *program) KernelNames() []string {
	return append([]string(nil), p.names...)
}

func (p *program) NewKernel(name string) (driver.Kernel, error) {
	if p.released.Load() {
		return nil, driver.ErrReleased
	}

	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var status C.cl_int

	k := C.clCreateKernel(p.id, cname, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateKernel", status)
	}

	var nargs C.cl_uint

	status = C.clGetKernelInfo(k, C.CL_KERNEL_NUM_ARGS, C.size_t(unsafe.Sizeof(nargs)), unsafe.Pointer(&nargs), nil)
	if status != C.CL_SUCCESS {
		C.clReleaseKernel(k)
		return nil, statusError("clGetKernelInfo(numArgs)", status)
	}

	return &kernel{id: k, name: name, nargs: int(nargs)}, nil
}

// Release drops the program handle. Kernels keep their own reference on
// the program inside the OpenCL runtime.
func (p *program) Release() error {
	if p.released.Swap(true) {
		return nil
	}

	return check("clReleaseProgram", C.clReleaseProgram(p.id))
}

type kernel struct {
	id       C.cl_kernel
	name     string
	nargs    int
	released atomic.Bool
}

func (k *kernel) Name() string { return k.name }
func (k *kernel) NumArgs() int { return k.nargs }

func (k *kernel) SetArg(index int, arg driver.Arg) error {
	if k.released.Load() {
		return driver.ErrReleased
	}

	if index < 0 || index >= k.nargs {
		return fmt.Errorf("%w: %s has %d arguments, got index %d", driver.ErrInvalidArgIndex, k.name, k.nargs, index)
	}

	idx := C.cl_uint(index)

	var status C.cl_int

	switch {
	case arg.Buffer != nil:
		b, ok := arg.Buffer.(*buffer)
		if !ok {
			return fmt.Errorf("%w: buffer from another driver", driver.ErrInvalidArgValue)
		}

		mem := b.id
		status = C.clSetKernelArg(k.id, idx, C.size_t(unsafe.Sizeof(mem)), unsafe.Pointer(&mem))
	case arg.Local > 0:
		status = C.clSetKernelArg(k.id, idx, C.size_t(arg.Local), nil)
	case len(arg.Scalar) > 0:
		status = C.clSetKernelArg(k.id, idx, C.size_t(len(arg.Scalar)), unsafe.Pointer(&arg.Scalar[0]))
	default:
		return fmt.Errorf("%w: empty argument", driver.ErrInvalidArgValue)
	}

	return check("clSetKernelArg", status)
}

func (k *kernel) Release() error {
	if k.released.Swap(true) {
		return driver.ErrReleased
	}

	return check("clReleaseKernel", C.clReleaseKernel(k.id))
}

type queue struct {
	id       C.cl_command_queue
	ctx      *clContext
	released atomic.Bool
}

func (q *queue) EnqueueKernel(dk driver.Kernel, global, local driver.NDRange, wait []driver.Event) (driver.Event, error) {
	k, ok := dk.(*kernel)
	if !ok {
		return nil, fmt.Errorf("%w: kernel from another driver", driver.ErrInvalidArgValue)
	}

	if global.Dims < 1 || global.Dims > 3 || (local.Dims != 0 && local.Dims != global.Dims) {
		return nil, fmt.Errorf("%w: global %d-D, local %d-D", driver.ErrInvalidWorkSize, global.Dims, local.Dims)
	}

	var gws, lws [3]C.size_t
	for i := range global.Dims {
		gws[i] = C.size_t(global.Sizes[i])
		lws[i] = C.size_t(local.Sizes[i])
	}

	var lptr *C.size_t
	if local.Dims != 0 {
		lptr = &lws[0]
	}

	list, n, err := waitList(wait)
	if err != nil {
		return nil, err
	}

	var ev C.cl_event

	status := C.clEnqueueNDRangeKernel(q.id, k.id, C.cl_uint(global.Dims), nil, &gws[0], lptr, n, list, &ev)
	if status != C.CL_SUCCESS {
		return nil, statusError("clEnqueueNDRangeKernel "+k.name, status)
	}

	return &event{id: ev}, nil
}

// hostBlocking forces transfers to block when host memory sits on the Go
// heap: cgo forbids C keeping such pointers past the call.
func hostBlocking(blocking bool) bool {
	return blocking || !hostmem.OffHeap
}

func (q *queue) EnqueueRead(db driver.Buffer, blocking bool, offset int, dst []byte, wait []driver.Event) (driver.Event, error) {
	b, err := q.hostBuffer(db, offset, len(dst))
	if err != nil {
		return nil, err
	}

	list, n, err := waitList(wait)
	if err != nil {
		return nil, err
	}

	var ev C.cl_event

	status := C.clEnqueueReadBuffer(q.id, b.id, clBool(hostBlocking(blocking)), C.size_t(offset), C.size_t(len(dst)),
		unsafe.Pointer(&dst[0]), n, list, &ev)
	if status != C.CL_SUCCESS {
		return nil, statusError("clEnqueueReadBuffer", status)
	}

	return &event{id: ev}, nil
}

func (q *queue) EnqueueWrite(db driver.Buffer, blocking bool, offset int, src []byte, wait []driver.Event) (driver.Event, error) {
	b, err := q.hostBuffer(db, offset, len(src))
	if err != nil {
		return nil, err
	}

	list, n, err := waitList(wait)
	if err != nil {
		return nil, err
	}

	var ev C.cl_event

	status := C.clEnqueueWriteBuffer(q.id, b.id, clBool(hostBlocking(blocking)), C.size_t(offset), C.size_t(len(src)),
		unsafe.Pointer(&src[0]), n, list, &ev)
	if status != C.CL_SUCCESS {
		return nil, statusError("clEnqueueWriteBuffer", status)
	}

	return &event{id: ev}, nil
}

func (q *queue) EnqueueCopy(dsrc, ddst driver.Buffer, srcOffset, dstOffset, size int, wait []driver.Event) (driver.Event, error) {
	src, ok := dsrc.(*buffer)
	if !ok {
		return nil, fmt.Errorf("%w: buffer from another driver", driver.ErrInvalidArgValue)
	}

	dst, ok := ddst.(*buffer)
	if !ok {
		return nil, fmt.Errorf("%w: buffer from another driver", driver.ErrInvalidArgValue)
	}

	if size <= 0 || srcOffset < 0 || dstOffset < 0 || srcOffset+size > src.size || dstOffset+size > dst.size {
		return nil, fmt.Errorf("%w: copy %d bytes from %d/%d to %d/%d", driver.ErrOutOfRange, size, srcOffset, src.size, dstOffset, dst.size)
	}

	list, n, err := waitList(wait)
	if err != nil {
		return nil, err
	}

	var ev C.cl_event

	status := C.clEnqueueCopyBuffer(q.id, src.id, dst.id, C.size_t(srcOffset), C.size_t(dstOffset), C.size_t(size), n, list, &ev)
	if status != C.CL_SUCCESS {
		return nil, statusError("clEnqueueCopyBuffer", status)
	}

	return &event{id: ev}, nil
}

func (q *queue) hostBuffer(db driver.Buffer, offset, size int) (*buffer, error) {
	b, ok := db.(*buffer)
	if !ok {
		return nil, fmt.Errorf("%w: buffer from another driver", driver.ErrInvalidArgValue)
	}

	if b.flags.Has(driver.MemHostNoAccess) {
		return nil, fmt.Errorf("%w: %s", driver.ErrHostAccess, b.flags)
	}

	if size <= 0 || offset < 0 || offset+size > b.size {
		return nil, fmt.Errorf("%w: %d bytes at %d of %d", driver.ErrOutOfRange, size, offset, b.size)
	}

	return b, nil
}

func (q *queue) Flush() error {
	return check("clFlush", C.clFlush(q.id))
}

func (q *queue) Finish() error {
	return check("clFinish", C.clFinish(q.id))
}

func (q *queue) Release() error {
	if q.released.Swap(true) {
		return driver.ErrReleased
	}

	return check("clReleaseCommandQueue", C.clReleaseCommandQueue(q.id))
}

type event struct {
	id       C.cl_event
	released atomic.Bool
}

func (e *event) Wait() error {
	if e.released.Load() {
		return driver.ErrReleased
	}

	status := C.clWaitForEvents(1, &e.id)
	if status == C.CL_EXEC_STATUS_ERROR_FOR_EVENTS_IN_WAIT_LIST {
		return fmt.Errorf("%w: %s", driver.ErrDependencyFailed, errorString(status))
	}

	if err := check("clWaitForEvents", status); err != nil {
		return err
	}

	st, err := e.execStatus()
	if err != nil {
		return err
	}

	if st < 0 {
		return statusError("command", st)
	}

	return nil
}

func (e *event) execStatus() (C.cl_int, error) {
	var st C.cl_int

	status := C.clGetEventInfo(e.id, C.CL_EVENT_COMMAND_EXECUTION_STATUS, C.size_t(unsafe.Sizeof(st)), unsafe.Pointer(&st), nil)
	if status != C.CL_SUCCESS {
		return 0, statusError("clGetEventInfo(status)", status)
	}

	return st, nil
}

func (e *event) Status() (driver.Status, error) {
	if e.released.Load() {
		return driver.StatusFailed, driver.ErrReleased
	}

	st, err := e.execStatus()
	if err != nil {
		return driver.StatusFailed, err
	}

	switch {
	case st < 0:
		return driver.StatusFailed, nil
	case st == C.CL_COMPLETE:
		return driver.StatusComplete, nil
	case st == C.CL_RUNNING:
		return driver.StatusRunning, nil
	case st == C.CL_SUBMITTED:
		return driver.StatusSubmitted, nil
	default:
		return driver.StatusQueued, nil
	}
}

func (e *event) Profile() (driver.Profile, error) {
	if e.released.Load() {
		return driver.Profile{}, driver.ErrReleased
	}

	var p driver.Profile

	for _, f := range []struct {
		param C.cl_profiling_info
		dst   *uint64
	}{
		{C.CL_PROFILING_COMMAND_QUEUED, &p.Queued},
		{C.CL_PROFILING_COMMAND_SUBMIT, &p.Submit},
		{C.CL_PROFILING_COMMAND_START, &p.Start},
		{C.CL_PROFILING_COMMAND_END, &p.End},
	} {
		var v C.cl_ulong

		status := C.clGetEventProfilingInfo(e.id, f.param, C.size_t(unsafe.Sizeof(v)), unsafe.Pointer(&v), nil)
		if status == C.CL_PROFILING_INFO_NOT_AVAILABLE {
			return driver.Profile{}, fmt.Errorf("%w: %s", driver.ErrNotComplete, errorString(status))
		}

		if status != C.CL_SUCCESS {
			return driver.Profile{}, statusError("clGetEventProfilingInfo", status)
		}

		*f.dst = uint64(v)
	}

	return p, nil
}

func (e *event) Release() error {
	if e.released.Swap(true) {
		return driver.ErrReleased
	}

	return check("clReleaseEvent", C.clReleaseEvent(e.id))
}

// waitList converts wait into a C array. The array lives in Go memory and
// holds only C handles.
func waitList(wait []driver.Event) (*C.cl_event, C.cl_uint, error) {
	if len(wait) == 0 {
		return nil, 0, nil
	}

	list := make([]C.cl_event, len(wait))

	for i, w := range wait {
		e, ok := w.(*event)
		if !ok {
			return nil, 0, driver.ErrInvalidEvent
		}

		if e.released.Load() {
			return nil, 0, driver.ErrReleased
		}

		list[i] = e.id
	}

	return &list[0], C.cl_uint(len(list)), nil
}

func memFlags(f driver.MemFlags) (C.cl_mem_flags, error) {
	var out C.cl_mem_flags

	switch {
	case f.Has(driver.MemReadOnly):
		out |= C.CL_MEM_READ_ONLY
	case f.Has(driver.MemWriteOnly):
		out |= C.CL_MEM_WRITE_ONLY
	default:
		out |= C.CL_MEM_READ_WRITE
	}

	if f.Has(driver.MemUseHostPtr) && f.Has(driver.MemCopyHostPtr) {
		return 0, fmt.Errorf("%w: %s", driver.ErrInvalidFlags, f)
	}

	if f.Has(driver.MemUseHostPtr) {
		out |= C.CL_MEM_USE_HOST_PTR
	}

	if f.Has(driver.MemCopyHostPtr) {
		out |= C.CL_MEM_COPY_HOST_PTR
	}

	// Host access flags are OpenCL 1.2; they are enforced here as well so
	// the software device and this driver reject the same transfers.
	switch {
	case f.Has(driver.MemHostNoAccess):
		out |= C.CL_MEM_HOST_NO_ACCESS
	case f.Has(driver.MemHostReadOnly):
		out |= C.CL_MEM_HOST_READ_ONLY
	case f.Has(driver.MemHostWriteOnly):
		out |= C.CL_MEM_HOST_WRITE_ONLY
	}

	return out, nil
}

func deviceTypeMask(t driver.Type) C.cl_device_type {
	switch t {
	case driver.TypeCPU:
		return C.CL_DEVICE_TYPE_CPU
	case driver.TypeGPU:
		return C.CL_DEVICE_TYPE_GPU
	case driver.TypeAccelerator:
		return C.CL_DEVICE_TYPE_ACCELERATOR
	case driver.TypeDefault:
		return C.CL_DEVICE_TYPE_DEFAULT
	default:
		return C.CL_DEVICE_TYPE_ALL
	}
}

func mapDeviceType(dt C.cl_device_type) driver.Type {
	switch {
	case dt&C.CL_DEVICE_TYPE_GPU != 0:
		return driver.TypeGPU
	case dt&C.CL_DEVICE_TYPE_CPU != 0:
		return driver.TypeCPU
	case dt&C.CL_DEVICE_TYPE_ACCELERATOR != 0:
		return driver.TypeAccelerator
	default:
		return driver.TypeDefault
	}
}

func platformInfo(id C.cl_platform_id) (driver.PlatformInfo, error) {
	var info driver.PlatformInfo

	for _, f := range []struct {
		param C.cl_platform_info
		dst   *string
	}{
		{C.CL_PLATFORM_NAME, &info.Name},
		{C.CL_PLATFORM_VENDOR, &info.Vendor},
		{C.CL_PLATFORM_VERSION, &info.Version},
	} {
		var size C.size_t

		status := C.clGetPlatformInfo(id, f.param, 0, nil, &size)
		if status != C.CL_SUCCESS {
			return info, statusError("clGetPlatformInfo(size)", status)
		}

		if size == 0 {
			continue
		}

		buf := make([]byte, int(size))

		status = C.clGetPlatformInfo(id, f.param, size, unsafe.Pointer(&buf[0]), nil)
		if status != C.CL_SUCCESS {
			return info, statusError("clGetPlatformInfo(value)", status)
		}

		*f.dst = trimNull(buf)
	}

	return info, nil
}

func deviceInfo(id C.cl_device_id) (driver.DeviceInfo, error) {
	var (
		info       driver.DeviceInfo
		extensions string
	)

	for _, f := range []struct {
		param C.cl_device_info
		dst   *string
	}{
		{C.CL_DEVICE_NAME, &info.Name},
		{C.CL_DEVICE_VENDOR, &info.Vendor},
		{C.CL_DEVICE_VERSION, &info.Version},
		{C.CL_DEVICE_EXTENSIONS, &extensions},
	} {
		s, err := deviceString(id, f.param)
		if err != nil {
			return info, err
		}

		*f.dst = s
	}

	info.Extensions = strings.Fields(extensions)

	var rawType C.cl_device_type

	status := C.clGetDeviceInfo(id, C.CL_DEVICE_TYPE, C.size_t(unsafe.Sizeof(rawType)), unsafe.Pointer(&rawType), nil)
	if status != C.CL_SUCCESS {
		return info, statusError("clGetDeviceInfo(type)", status)
	}

	info.Type = mapDeviceType(rawType)

	var units C.cl_uint

	status = C.clGetDeviceInfo(id, C.CL_DEVICE_MAX_COMPUTE_UNITS, C.size_t(unsafe.Sizeof(units)), unsafe.Pointer(&units), nil)
	if status != C.CL_SUCCESS {
		return info, statusError("clGetDeviceInfo(computeUnits)", status)
	}

	info.ComputeUnits = int(units)

	var wg C.size_t

	status = C.clGetDeviceInfo(id, C.CL_DEVICE_MAX_WORK_GROUP_SIZE, C.size_t(unsafe.Sizeof(wg)), unsafe.Pointer(&wg), nil)
	if status != C.CL_SUCCESS {
		return info, statusError("clGetDeviceInfo(workGroupSize)", status)
	}

	info.MaxWorkGroupSize = int(wg)

	return info, nil
}

func deviceString(id C.cl_device_id, param C.cl_device_info) (string, error) {
	var size C.size_t

	status := C.clGetDeviceInfo(id, param, 0, nil, &size)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetDeviceInfo(size)", status)
	}

	if size == 0 {
		return "", nil
	}

	buf := make([]byte, int(size))

	status = C.clGetDeviceInfo(id, param, size, unsafe.Pointer(&buf[0]), nil)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetDeviceInfo(value)", status)
	}

	return trimNull(buf), nil
}

func buildLog(prog C.cl_program, dev C.cl_device_id) string {
	var size C.size_t

	if C.clGetProgramBuildInfo(prog, dev, C.CL_PROGRAM_BUILD_LOG, 0, nil, &size) != C.CL_SUCCESS || size == 0 {
		return ""
	}

	buf := make([]byte, int(size))
	if C.clGetProgramBuildInfo(prog, dev, C.CL_PROGRAM_BUILD_LOG, size, unsafe.Pointer(&buf[0]), nil) != C.CL_SUCCESS {
		return ""
	}

	return strings.TrimSpace(trimNull(buf))
}

func kernelNames(prog C.cl_program) ([]string, error) {
	var size C.size_t

	status := C.clGetProgramInfo(prog, C.CL_PROGRAM_KERNEL_NAMES, 0, nil, &size)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetProgramInfo(kernelNames)", status)
	}

	if size == 0 {
		return nil, nil
	}

	buf := make([]byte, int(size))

	status = C.clGetProgramInfo(prog, C.CL_PROGRAM_KERNEL_NAMES, size, unsafe.Pointer(&buf[0]), nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetProgramInfo(kernelNames)", status)
	}

	names := strings.Split(trimNull(buf), ";")
	out := names[:0]

	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}

	return out, nil
}

func trimNull(buf []byte) string {
	if len(buf) > 0 && buf[len(buf)-1] == 0 {
		buf = buf[:len(buf)-1]
	}

	return string(buf)
}

func clBool(b bool) C.cl_bool {
	if b {
		return C.CL_TRUE
	}

	return C.CL_FALSE
}

func errorString(status C.cl_int) string {
	return C.GoString(C.bicgstab_cl_error_string(status))
}

// statusSentinels maps OpenCL status codes onto the driver errors the device
// package classifies.
var statusSentinels = map[C.cl_int]error{
	C.CL_INVALID_ARG_INDEX:                         driver.ErrInvalidArgIndex,
	C.CL_INVALID_ARG_SIZE:                          driver.ErrInvalidArgSize,
	C.CL_INVALID_ARG_VALUE:                         driver.ErrInvalidArgValue,
	C.CL_INVALID_MEM_OBJECT:                        driver.ErrInvalidArgValue,
	C.CL_INVALID_KERNEL_ARGS:                       driver.ErrArgsNotSet,
	C.CL_INVALID_WORK_DIMENSION:                    driver.ErrInvalidWorkSize,
	C.CL_INVALID_WORK_GROUP_SIZE:                   driver.ErrInvalidWorkSize,
	C.CL_INVALID_WORK_ITEM_SIZE:                    driver.ErrInvalidWorkSize,
	C.CL_INVALID_KERNEL_NAME:                       driver.ErrKernelNotFound,
	C.CL_INVALID_EVENT_WAIT_LIST:                   driver.ErrInvalidEvent,
	C.CL_EXEC_STATUS_ERROR_FOR_EVENTS_IN_WAIT_LIST: driver.ErrDependencyFailed,
	C.CL_MEM_COPY_OVERLAP:                          driver.ErrOutOfRange,
}

var errStatus = errors.New("opencl")

func statusError(op string, status C.cl_int) error {
	sentinel := statusSentinels[status]
	if sentinel == nil {
		sentinel = errStatus
	}

	return fmt.Errorf("%w: %s: %s (%d)", sentinel, op, errorString(status), int(status))
}

func check(op string, status C.cl_int) error {
	if status == C.CL_SUCCESS {
		return nil
	}

	return statusError(op, status)
}
