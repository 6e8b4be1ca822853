package trace

import "github.com/sarchlab/tasktrace/archive"

// Attribute refs of the attributes written to every archive.
const (
	AttrUniqueID archive.AttributeRef = iota
	AttrPriorTaskID
	AttrNextTaskID
	AttrEncounteringTaskID
	AttrRequestedParallelism
	AttrIsLeague
	AttrWorkshareType
	AttrWorkshareCount
	AttrSyncType
	AttrSyncDescendantTasks
	AttrPhaseType
	AttrPhaseName
	AttrParentTaskID
	AttrTaskFlags
	AttrTaskHasDependences
	AttrEventType
	AttrCPU
	AttrEndpoint
	AttrTaskType
	AttrParentTaskType
	AttrTaskIsUndeferred
	AttrTaskIsUntied
	AttrTaskIsFinal
	AttrTaskIsMergeable
	AttrTaskIsMerged
	AttrThreadType
	AttrRegionType
	AttrNextTaskRegionType
	AttrPriorTaskStatus
	AttrSourceLineNumber
	AttrSourceFileName
	AttrSourceFuncName
	AttrTaskCreateRA

	numAttributes
)

type attributeSpec struct {
	typ  archive.AttributeType
	name string
	desc string
}

var attributeSpecs = [numAttributes]attributeSpec{
	AttrUniqueID:             {archive.TypeUint64, "unique_id", "unique ID of a task, parallel region or thread"},
	AttrPriorTaskID:          {archive.TypeUint64, "prior_task_id", "unique ID of a task suspended at a task-scheduling point"},
	AttrNextTaskID:           {archive.TypeUint64, "next_task_id", "unique ID of a task resumed at a task-scheduling point"},
	AttrEncounteringTaskID:   {archive.TypeUint64, "encountering_task_id", "unique ID of the task that encountered this region"},
	AttrRequestedParallelism: {archive.TypeUint32, "requested_parallelism", "requested parallelism of parallel region"},
	AttrIsLeague:             {archive.TypeString, "is_league", "is this parallel region a league of teams?"},
	AttrWorkshareType:        {archive.TypeString, "workshare_type", "type of workshare region"},
	AttrWorkshareCount:       {archive.TypeUint64, "workshare_count", "number of iterations associated with workshare region"},
	AttrSyncType:             {archive.TypeString, "sync_type", "type of synchronisation region"},
	AttrSyncDescendantTasks:  {archive.TypeUint8, "sync_descendant_tasks", "whether this region synchronises descendant tasks"},
	AttrPhaseType:            {archive.TypeString, "phase_type", "type of phase region"},
	AttrPhaseName:            {archive.TypeString, "phase_name", "the name of an algorithmic phase"},
	AttrParentTaskID:         {archive.TypeUint64, "parent_task_id", "unique ID of the parent task of this task"},
	AttrTaskFlags:            {archive.TypeUint32, "task_flags", "flags set for this task"},
	AttrTaskHasDependences:   {archive.TypeUint8, "task_has_dependences", "whether this task has dependences"},
	AttrEventType:            {archive.TypeString, "event_type", "type of event"},
	AttrCPU:                  {archive.TypeInt32, "cpu", "cpu on which the encountering thread is running"},
	AttrEndpoint:             {archive.TypeString, "endpoint", "is this a region-enter or region-leave event"},
	AttrTaskType:             {archive.TypeString, "task_type", "task classification"},
	AttrParentTaskType:       {archive.TypeString, "parent_task_type", "task classification of the parent task of this task"},
	AttrTaskIsUndeferred:     {archive.TypeUint8, "task_is_undeferred", "task is undeferred"},
	AttrTaskIsUntied:         {archive.TypeUint8, "task_is_untied", "task is untied"},
	AttrTaskIsFinal:          {archive.TypeUint8, "task_is_final", "task is final"},
	AttrTaskIsMergeable:      {archive.TypeUint8, "task_is_mergeable", "task is mergeable"},
	AttrTaskIsMerged:         {archive.TypeUint8, "task_is_merged", "task is merged"},
	AttrThreadType:           {archive.TypeString, "thread_type", "thread type"},
	AttrRegionType:           {archive.TypeString, "region_type", "region type"},
	AttrNextTaskRegionType:   {archive.TypeString, "next_task_region_type", "region type of a task resumed at a task-scheduling point"},
	AttrPriorTaskStatus:      {archive.TypeString, "prior_task_status", "status of the task that arrived at a task scheduling point"},
	AttrSourceLineNumber:     {archive.TypeUint32, "source_line_number", "the line number of the construct which caused this region to be created"},
	AttrSourceFileName:       {archive.TypeString, "source_file_name", "the source file containing the construct which caused this region to be created"},
	AttrSourceFuncName:       {archive.TypeString, "source_func_name", "the name of the function containing the construct which caused this region to be created"},
	AttrTaskCreateRA:         {archive.TypeUint64, "task_create_ra", "return address of a task-create event"},
}

// AttributeName returns the name an attribute is defined with.
func AttributeName(ref archive.AttributeRef) string {
	if ref >= numAttributes {
		return ""
	}

	return attributeSpecs[ref].name
}

// Labels are the string values that string attributes take. Each is written
// once per archive.
var labelStrings = []string{
	// flags
	"Y", "N", "true", "false", "string_not_defined",

	// event types
	"thread_begin", "thread_end",
	"parallel_begin", "parallel_end",
	"workshare_begin", "workshare_end",
	"sync_begin", "sync_end",
	"task_create", "task_switch", "task_enter", "task_leave",
	"master_begin", "master_end",
	"phase_begin", "phase_end",

	// endpoints
	"enter", "leave", "discrete",

	// thread types
	"initial", "worker", "other", "unknown",

	// region types
	"parallel", "workshare", "sync", "task",
	"initial_task", "implicit_task", "explicit_task", "target_task",
	"sections", "single_executor", "single_other", "distribute", "loop",
	"taskloop", "master",
	"barrier", "barrier_implicit", "barrier_explicit",
	"barrier_implementation", "taskwait", "taskgroup", "reduction",
	"generic_phase",

	// prior task status
	"complete", "yield", "cancel", "detach", "early_fulfil", "late_fulfil",
	"switch", "undefined",
}
