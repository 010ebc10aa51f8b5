package agent

import (
	"errors"
	"strconv"

	"github.com/remora-mesh/remora/internal/debug/jobtree"
	"github.com/remora-mesh/remora/internal/debug/process"
	"github.com/remora-mesh/remora/internal/ipc/wire"
	"github.com/remora-mesh/remora/internal/sysapi"
)

// OnHello implements remoteapi.Handler.
func (a *Agent) OnHello(req wire.HelloRequest) wire.HelloReply {
	return wire.HelloReply{
		Version: wire.ProtocolVersion,
		AgentID: a.agentID,
		Arch:    a.sys.Arch(),
	}
}

// OnStatus implements remoteapi.Handler.
func (a *Agent) OnStatus(req wire.StatusRequest) wire.StatusReply {
	a.mu.Lock()
	defer a.mu.Unlock()

	reply := wire.StatusReply{
		BreakpointCount: uint32(len(a.breakpoints)),
		FilterCount:     uint32(a.rootJob.FilterCount()),
	}
	for _, dp := range a.procs {
		reply.Processes = append(reply.Processes, processRecord(dp))
	}
	return reply
}

// OnPause implements remoteapi.Handler. ProcessKoid zero pauses every
// tracked process; ThreadKoid zero pauses every thread of the selected
// process.
func (a *Agent) OnPause(req wire.PauseRequest) wire.PauseReply {
	status := a.forEachScoped(req.ProcessKoid, req.ThreadKoid,
		func(dp *process.DebuggedProcess) error { return dp.Pause() },
		func(dt *process.DebuggedThread) error { return dt.Pause() },
	)
	return wire.PauseReply{Status: status}
}

// OnResume implements remoteapi.Handler, with the same scoping as
// OnPause.
func (a *Agent) OnResume(req wire.ResumeRequest) wire.ResumeReply {
	status := a.forEachScoped(req.ProcessKoid, req.ThreadKoid,
		func(dp *process.DebuggedProcess) error { return dp.Resume() },
		func(dt *process.DebuggedThread) error { return dt.Resume() },
	)
	return wire.ResumeReply{Status: status}
}

// forEachScoped applies a pause/resume operation to the koid-selected
// scope.
func (a *Agent) forEachScoped(processKoid, threadKoid uint64, procFn func(*process.DebuggedProcess) error, threadFn func(*process.DebuggedThread) error) wire.Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	if processKoid == 0 {
		for _, dp := range a.procs {
			if err := procFn(dp); err != nil {
				return wire.NewStatus(wire.ErrIO, "process %d: %v", dp.Koid(), err)
			}
		}
		return wire.OkStatus()
	}

	dp, ok := a.procs[sysapi.Koid(processKoid)]
	if !ok {
		return wire.NewStatus(wire.ErrNotFound, "process %d not attached", processKoid)
	}
	if threadKoid == 0 {
		if err := procFn(dp); err != nil {
			return wire.NewStatus(wire.ErrIO, "process %d: %v", processKoid, err)
		}
		return wire.OkStatus()
	}

	dt, ok := dp.Thread(sysapi.Koid(threadKoid))
	if !ok {
		return wire.NewStatus(wire.ErrNotFound, "thread %d not found in process %d", threadKoid, processKoid)
	}
	if err := threadFn(dt); err != nil {
		return wire.NewStatus(wire.ErrIO, "thread %d: %v", threadKoid, err)
	}
	return wire.OkStatus()
}

// OnModules implements remoteapi.Handler.
func (a *Agent) OnModules(req wire.ModulesRequest) wire.ModulesReply {
	a.mu.Lock()
	defer a.mu.Unlock()

	dp, ok := a.procs[sysapi.Koid(req.ProcessKoid)]
	if !ok {
		return wire.ModulesReply{Status: wire.NewStatus(wire.ErrNotFound, "process %d not attached", req.ProcessKoid)}
	}
	modules, err := dp.Handle().Modules()
	if err != nil {
		return wire.ModulesReply{Status: wire.NewStatus(wire.ErrIO, "modules for %d: %v", req.ProcessKoid, err)}
	}

	reply := wire.ModulesReply{Status: wire.OkStatus()}
	for _, m := range modules {
		reply.Modules = append(reply.Modules, wire.Module{Name: m.Name, Base: m.Base, BuildID: m.BuildID})
	}
	return reply
}

// OnProcessTree implements remoteapi.Handler. The snapshot covers the
// whole tree under the root job, attached or not.
func (a *Agent) OnProcessTree(req wire.ProcessTreeRequest) wire.ProcessTreeReply {
	return wire.ProcessTreeReply{Root: jobTreeRecord(a.sys.RootJob())}
}

func jobTreeRecord(job sysapi.Job) wire.ProcessTreeRecord {
	record := wire.ProcessTreeRecord{
		Type: wire.ProcessTreeJob,
		Koid: uint64(job.Koid()),
		Name: job.Name(),
	}
	for _, child := range job.ChildJobs() {
		record.Children = append(record.Children, jobTreeRecord(child))
	}
	for _, p := range job.Processes() {
		record.Children = append(record.Children, wire.ProcessTreeRecord{
			Type: wire.ProcessTreeProcess,
			Koid: uint64(p.Koid()),
			Name: p.Name(),
		})
	}
	return record
}

// OnThreads implements remoteapi.Handler.
func (a *Agent) OnThreads(req wire.ThreadsRequest) wire.ThreadsReply {
	a.mu.Lock()
	defer a.mu.Unlock()

	dp, ok := a.procs[sysapi.Koid(req.ProcessKoid)]
	if !ok {
		return wire.ThreadsReply{Status: wire.NewStatus(wire.ErrNotFound, "process %d not attached", req.ProcessKoid)}
	}

	reply := wire.ThreadsReply{Status: wire.OkStatus()}
	for _, dt := range dp.Threads() {
		reply.Threads = append(reply.Threads, threadRecord(dp.Koid(), dt))
	}
	return reply
}

// OnReadMemory implements remoteapi.Handler.
func (a *Agent) OnReadMemory(req wire.ReadMemoryRequest) wire.ReadMemoryReply {
	a.mu.Lock()
	defer a.mu.Unlock()

	dp, ok := a.procs[sysapi.Koid(req.ProcessKoid)]
	if !ok {
		return wire.ReadMemoryReply{Status: wire.NewStatus(wire.ErrNotFound, "process %d not attached", req.ProcessKoid)}
	}

	buf := make([]byte, req.Size)
	n, err := dp.Handle().ReadMemory(req.Address, buf)
	if err != nil {
		return wire.ReadMemoryReply{Status: memoryStatus(req.Address, err)}
	}
	return wire.ReadMemoryReply{Status: wire.OkStatus(), Data: buf[:n]}
}

// OnWriteMemory implements remoteapi.Handler.
func (a *Agent) OnWriteMemory(req wire.WriteMemoryRequest) wire.WriteMemoryReply {
	a.mu.Lock()
	defer a.mu.Unlock()

	dp, ok := a.procs[sysapi.Koid(req.ProcessKoid)]
	if !ok {
		return wire.WriteMemoryReply{Status: wire.NewStatus(wire.ErrNotFound, "process %d not attached", req.ProcessKoid)}
	}
	if _, err := dp.Handle().WriteMemory(req.Address, req.Data); err != nil {
		return wire.WriteMemoryReply{Status: memoryStatus(req.Address, err)}
	}
	return wire.WriteMemoryReply{Status: wire.OkStatus()}
}

func memoryStatus(address uint64, err error) wire.Status {
	if errors.Is(err, sysapi.ErrNotMapped) {
		return wire.NewStatus(wire.ErrIO, "address %#x not mapped", address)
	}
	return wire.NewStatus(wire.ErrIO, "memory access at %#x: %v", address, err)
}

// OnReadRegisters implements remoteapi.Handler.
func (a *Agent) OnReadRegisters(req wire.ReadRegistersRequest) wire.ReadRegistersReply {
	dt, status := a.lookupThread(req.ProcessKoid, req.ThreadKoid)
	if !status.Ok() {
		return wire.ReadRegistersReply{Status: status}
	}

	regs, err := dt.Handle().ReadRegisters()
	if err != nil {
		return wire.ReadRegistersReply{Status: wire.NewStatus(wire.ErrIO, "read registers: %v", err)}
	}
	reply := wire.ReadRegistersReply{Status: wire.OkStatus()}
	for _, r := range regs {
		reply.Registers = append(reply.Registers, wire.Register{ID: r.ID, Value: r.Value})
	}
	return reply
}

// OnWriteRegisters implements remoteapi.Handler.
func (a *Agent) OnWriteRegisters(req wire.WriteRegistersRequest) wire.WriteRegistersReply {
	dt, status := a.lookupThread(req.ProcessKoid, req.ThreadKoid)
	if !status.Ok() {
		return wire.WriteRegistersReply{Status: status}
	}

	regs := make([]sysapi.RegisterValue, len(req.Registers))
	for i, r := range req.Registers {
		regs[i] = sysapi.RegisterValue{ID: r.ID, Value: r.Value}
	}
	if err := dt.Handle().WriteRegisters(regs); err != nil {
		return wire.WriteRegistersReply{Status: wire.NewStatus(wire.ErrIO, "write registers: %v", err)}
	}
	return wire.WriteRegistersReply{Status: wire.OkStatus()}
}

func (a *Agent) lookupThread(processKoid, threadKoid uint64) (*process.DebuggedThread, wire.Status) {
	a.mu.Lock()
	defer a.mu.Unlock()

	dp, ok := a.procs[sysapi.Koid(processKoid)]
	if !ok {
		return nil, wire.NewStatus(wire.ErrNotFound, "process %d not attached", processKoid)
	}
	dt, ok := dp.Thread(sysapi.Koid(threadKoid))
	if !ok {
		return nil, wire.NewStatus(wire.ErrNotFound, "thread %d not found in process %d", threadKoid, processKoid)
	}
	return dt, wire.OkStatus()
}

// OnSysInfo implements remoteapi.Handler.
func (a *Agent) OnSysInfo(req wire.SysInfoRequest) wire.SysInfoReply {
	return wire.SysInfoReply{
		Version:                 a.version,
		NumCPUs:                 uint32(a.sys.NumCPUs()),
		MemoryMB:                a.sys.TotalMemoryMB(),
		HWBreakpointCount:       uint32(a.sys.HardwareBreakpointCount()),
		HWWatchpointCount:       uint32(a.sys.HardwareWatchpointCount()),
		SoftwareBreakpointBytes: uint32(len(a.breakInstr)),
	}
}

// OnProcessStatus implements remoteapi.Handler. Recently exited
// processes answer from the exited cache with Running false.
func (a *Agent) OnProcessStatus(req wire.ProcessStatusRequest) wire.ProcessStatusReply {
	a.mu.Lock()
	defer a.mu.Unlock()

	koid := sysapi.Koid(req.ProcessKoid)
	if dp, ok := a.procs[koid]; ok {
		return wire.ProcessStatusReply{
			Status:  wire.OkStatus(),
			Record:  processRecord(dp),
			Running: true,
		}
	}
	if record, ok := a.exited.Get(koid); ok {
		return wire.ProcessStatusReply{Status: wire.OkStatus(), Record: record}
	}
	return wire.ProcessStatusReply{Status: wire.NewStatus(wire.ErrNotFound, "process %d unknown", req.ProcessKoid)}
}

// OnThreadStatus implements remoteapi.Handler.
func (a *Agent) OnThreadStatus(req wire.ThreadStatusRequest) wire.ThreadStatusReply {
	dt, status := a.lookupThread(req.ProcessKoid, req.ThreadKoid)
	if !status.Ok() {
		return wire.ThreadStatusReply{Status: status}
	}
	return wire.ThreadStatusReply{
		Status: wire.OkStatus(),
		Record: threadRecord(sysapi.Koid(req.ProcessKoid), dt),
	}
}

// OnAddressSpace implements remoteapi.Handler. A non-zero Address
// restricts the reply to regions containing it.
func (a *Agent) OnAddressSpace(req wire.AddressSpaceRequest) wire.AddressSpaceReply {
	a.mu.Lock()
	defer a.mu.Unlock()

	dp, ok := a.procs[sysapi.Koid(req.ProcessKoid)]
	if !ok {
		return wire.AddressSpaceReply{Status: wire.NewStatus(wire.ErrNotFound, "process %d not attached", req.ProcessKoid)}
	}
	regions, err := dp.Handle().AddressSpace()
	if err != nil {
		return wire.AddressSpaceReply{Status: wire.NewStatus(wire.ErrIO, "address space for %d: %v", req.ProcessKoid, err)}
	}

	reply := wire.AddressSpaceReply{Status: wire.OkStatus()}
	for _, r := range regions {
		if req.Address != 0 && (req.Address < r.Base || req.Address >= r.Base+r.Size) {
			continue
		}
		reply.Regions = append(reply.Regions, wire.AddressRegion{Name: r.Name, Base: r.Base, Size: r.Size})
	}
	return reply
}

// OnJobFilter implements remoteapi.Handler. JobKoid zero targets the
// root job. The reply lists processes that already match; the agent does
// not attach to them implicitly.
func (a *Agent) OnJobFilter(req wire.JobFilterRequest) wire.JobFilterReply {
	a.mu.Lock()
	defer a.mu.Unlock()

	dj, status := a.lookupJobLocked(sysapi.Koid(req.JobKoid))
	if !status.Ok() {
		return wire.JobFilterReply{Status: status}
	}

	matched, err := dj.SetFilters(req.Filters)
	if err != nil {
		return wire.JobFilterReply{Status: wire.NewStatus(wire.ErrInvalidArgs, "%v", err)}
	}

	reply := wire.JobFilterReply{Status: wire.OkStatus()}
	for _, koid := range matched {
		reply.MatchedKoids = append(reply.MatchedKoids, uint64(koid))
	}
	return reply
}

// lookupJobLocked resolves a job koid to its tracked wrapper, wrapping
// it on first use. Koid zero means the root job.
func (a *Agent) lookupJobLocked(koid sysapi.Koid) (*jobtree.DebuggedJob, wire.Status) {
	if koid == 0 {
		return a.rootJob, wire.OkStatus()
	}
	if dj, ok := a.jobs[koid]; ok {
		return dj, wire.OkStatus()
	}
	job := findJob(a.sys.RootJob(), koid)
	if job == nil {
		return nil, wire.NewStatus(wire.ErrNotFound, "job %d not found", koid)
	}
	dj := jobtree.New(job, a, a.logger)
	a.jobs[koid] = dj
	return dj, wire.OkStatus()
}

// findJob searches the job tree for a koid.
func findJob(job sysapi.Job, koid sysapi.Koid) sysapi.Job {
	if job.Koid() == koid {
		return job
	}
	for _, child := range job.ChildJobs() {
		if found := findJob(child, koid); found != nil {
			return found
		}
	}
	return nil
}

// OnConfigAgent implements remoteapi.Handler. Actions apply in order;
// each gets its own status in the reply.
func (a *Agent) OnConfigAgent(req wire.ConfigAgentRequest) wire.ConfigAgentReply {
	a.mu.Lock()
	defer a.mu.Unlock()

	reply := wire.ConfigAgentReply{Results: make([]wire.Status, len(req.Actions))}
	for i, action := range req.Actions {
		switch action.Type {
		case wire.ConfigActionQuitOnExit:
			value, err := strconv.ParseBool(action.Value)
			if err != nil {
				reply.Results[i] = wire.NewStatus(wire.ErrInvalidArgs, "quit-on-exit value %q: %v", action.Value, err)
				continue
			}
			a.config.QuitOnExit = value
			reply.Results[i] = wire.OkStatus()
		default:
			reply.Results[i] = wire.NewStatus(wire.ErrNotSupported, "unknown config action %d", action.Type)
		}
	}
	return reply
}

// OnQuitAgent implements remoteapi.Handler. The shutdown runs off the
// handler goroutine so this reply reaches the client first.
func (a *Agent) OnQuitAgent(req wire.QuitAgentRequest) wire.QuitAgentReply {
	a.logger.Info().Msg("Quit requested by client")
	a.scheduleQuit()
	return wire.QuitAgentReply{}
}

func processRecord(dp *process.DebuggedProcess) wire.ProcessRecord {
	return wire.ProcessRecord{
		ProcessKoid: uint64(dp.Koid()),
		Name:        dp.Name(),
		ThreadCount: uint32(len(dp.Threads())),
	}
}
