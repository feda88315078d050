package event

import "fmt"

// auditEventNames maps BSM event numbers to their symbolic names, for the
// classic event set the monitor cares about. Unlisted types render with a
// numeric placeholder; downstream consumers key on the numeric type
// anyway.
var auditEventNames = map[uint16]string{
	0:  "AUE_NULL",
	1:  "AUE_EXIT",
	2:  "AUE_FORK",
	3:  "AUE_OPEN",
	4:  "AUE_CREAT",
	5:  "AUE_LINK",
	6:  "AUE_UNLINK",
	7:  "AUE_EXEC",
	8:  "AUE_CHDIR",
	9:  "AUE_MKNOD",
	10: "AUE_CHMOD",
	11: "AUE_CHOWN",
	15: "AUE_KILL",
	21: "AUE_SYMLINK",
	22: "AUE_READLINK",
	23: "AUE_EXECVE",
	24: "AUE_CHROOT",
	25: "AUE_VFORK",
	32: "AUE_CONNECT",
	33: "AUE_ACCEPT",
	34: "AUE_BIND",
	35: "AUE_SETSOCKOPT",
	42: "AUE_RENAME",
	43: "AUE_TRUNCATE",
	46: "AUE_SHUTDOWN",
	47: "AUE_MKDIR",
	48: "AUE_RMDIR",
	49: "AUE_UTIMES",
}

// Name returns the symbolic name of the event type.
func (ev *AuditEvent) Name() string {
	if name, ok := auditEventNames[ev.Type]; ok {
		return name
	}
	return fmt.Sprintf("AUE_%d", ev.Type)
}
