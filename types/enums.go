package types

// TaskKind is the closed set of job kinds exchanged through the jobs table.
type TaskKind string

const (
	TaskGetMeName      TaskKind = "get_me_name"
	TaskGetFolders     TaskKind = "get_folders"
	TaskProcessedUsers TaskKind = "processed_users"
	TaskGetChatTitle   TaskKind = "get_chat_title"

	TaskDeletePrivateChannel TaskKind = "delete_private_channel"
	TaskConnectionError      TaskKind = "connection_error"
	TaskFloodWaitError       TaskKind = "flood_wait_error"
)

// WorkerTaskKinds are requested by the panel and answered by a worker process.
func WorkerTaskKinds() []TaskKind {
	return []TaskKind{TaskGetMeName, TaskGetFolders, TaskProcessedUsers, TaskGetChatTitle}
}

// ControlTaskKinds are reported by a worker process and acknowledged by the panel.
func ControlTaskKinds() []TaskKind {
	return []TaskKind{TaskDeletePrivateChannel, TaskConnectionError, TaskFloodWaitError}
}

func (k TaskKind) Valid() bool {
	return k.ServicedByWorker() || k.servicedByControl()
}

func (k TaskKind) ServicedByWorker() bool {
	for _, w := range WorkerTaskKinds() {
		if w == k {
			return true
		}
	}
	return false
}

func (k TaskKind) servicedByControl() bool {
	for _, c := range ControlTaskKinds() {
		if c == k {
			return true
		}
	}
	return false
}

func (k TaskKind) String() string {
	return string(k)
}

const (
	BackToMain    = "main"
	BackToBot     = "bot"
	BackToFolders = "folders"
)

const DefaultBotName = "🌀"
