// Package process supervises one external process at a time.
//
// A Process is started with Start and owns the child's stdout and stderr.
// Unless started in blind mode, one goroutine per stream drains the pipe into
// a bounded queue; ReadLine and ReadOutput pop from those queues and give up
// after a short timeout so a caller's loop never stalls on a quiet child.
//
// Stop is forceful: it sends SIGKILL to the child's process group, waits for
// the child and its readers, and then closes the pipes. It is idempotent and
// safe to call after the child already exited.
//
//	p, err := process.Start(process.Options{
//	    ID:   "stream",
//	    Args: []string{"ffmpeg", "-re", "-i", "clip.mp4", "-f", "v4l2", "/dev/video20"},
//	})
//	if err != nil {
//	    return err
//	}
//	defer p.Stop()
//	for p.IsAlive() {
//	    if line, ok := p.ReadLine(); ok {
//	        fmt.Println(line)
//	    }
//	}
package process
