package pipeline

import "golang.org/x/sys/unix"

func dup2(oldfd, newfd int) error {
	return unix.Dup3(oldfd, newfd, 0)
}
