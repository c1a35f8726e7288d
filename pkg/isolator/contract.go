package isolator

import "context"

// Watch, Update, Usage, and Status complete the public Isolator contract
// a containerizer expects (§1, §6). Resource accounting is out of scope
// for this subsystem, so all four are no-ops.

func (iso *Isolator) Watch(ctx context.Context, containerID string) error {
	return nil
}

func (iso *Isolator) Update(ctx context.Context, containerID string, _ ResourceUpdate) error {
	return nil
}

func (iso *Isolator) Usage(ctx context.Context, containerID string) (ResourceUsage, error) {
	return ResourceUsage{}, nil
}

func (iso *Isolator) Status(ctx context.Context, containerID string) (ContainerStatus, error) {
	return ContainerStatus{}, nil
}
