package docker

import (
	"context"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	"github.com/shinji-kodama/envboot/internal/model"
)

// ListManagedContainers returns the envboot containers that still exist for
// workDir, or for every project when workDir is empty. Stopped containers
// are included. Step containers remove themselves, so anything listed here
// was left behind by an interrupted run.
func ListManagedContainers(ctx context.Context, cli *Client, workDir string) ([]model.ContainerInfo, error) {
	args := filters.NewArgs()
	for k, v := range FilterLabels(workDir) {
		args.Add("label", k+"="+v)
	}

	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: args,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitContainerEngineUnavailable,
			"failed to list Docker containers",
			err,
		)
	}

	result := make([]model.ContainerInfo, 0, len(containers))
	for _, c := range containers {
		result = append(result, containerToInfo(c))
	}
	sortContainers(result)
	return result, nil
}

// containerToInfo converts a Docker API container summary to the domain
// model. Label metadata that fails to parse is left zero rather than
// dropping the container, so it still shows up for cleanup.
func containerToInfo(c container.Summary) model.ContainerInfo {
	name := ""
	if len(c.Names) > 0 {
		// Docker prefixes names with "/".
		name = strings.TrimPrefix(c.Names[0], "/")
	}

	info := model.ContainerInfo{
		ContainerID:   c.ID,
		ContainerName: name,
		Status:        string(c.State),
	}
	if l, err := ParseLabels(c.Labels); err == nil {
		info.Step = l.Step
		info.WorkDir = l.WorkDir
		info.RunID = l.RunID
		info.CreatedAt = l.CreatedAt
	} else {
		info.Step = model.Step(c.Labels[LabelStep])
		info.WorkDir = c.Labels[LabelWorkDir]
		info.RunID = c.Labels[LabelRunID]
	}
	return info
}

// sortContainers orders containers oldest first, then by name.
func sortContainers(cs []model.ContainerInfo) {
	sort.SliceStable(cs, func(i, j int) bool {
		if !cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].CreatedAt.Before(cs[j].CreatedAt)
		}
		return cs[i].ContainerName < cs[j].ContainerName
	})
}
