package resourcepool

import (
	"context"
	"strconv"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// NodeLabel is the label a cluster node must carry to be counted as a pool
// member by NodesFromCluster, mirroring the "pool" label convention of
// controllers.PoolManager.AddNodeList.
const NodeLabel = "canary.sandia.gov/pool"

// GPUResourceName is the Kubernetes extended-resource name consulted for
// GPU capacity.
const GPUResourceName = corev1.ResourceName("nvidia.com/gpu")

// NodesFromCluster builds pool Nodes from the labeled, schedulable nodes of
// a live Kubernetes cluster, reading cpu/gpu allocatable capacity from each
// node's status. It is an alternative to the static `resource_pool`
// configuration for sites that want to size the pool from real cluster
// inventory, the same node walk as controllers.PoolManager.AddNodeList,
// generalized to also read GPU allocatable capacity instead of only
// counting nodes.
func NodesFromCluster(ctx context.Context, client kubernetes.Interface) ([]*Node, error) {
	list, err := client.CoreV1().Nodes().List(ctx, metav1.ListOptions{
		LabelSelector: NodeLabel,
	})
	if err != nil {
		return nil, err
	}

	var nodes []*Node
	for _, kn := range list.Items {
		if _, ok := kn.Labels[NodeLabel]; !ok {
			continue
		}
		if kn.Spec.Unschedulable {
			continue
		}

		n := &Node{ID: kn.Name, Resources: map[string][]Instance{}}

		if cpu, ok := kn.Status.Allocatable[corev1.ResourceCPU]; ok {
			if slots, ok := cpu.AsInt64(); ok && slots > 0 {
				n.Resources["cpus"] = []Instance{{ID: kn.Name + "-cpu", Slots: int(slots)}}
			}
		}
		if gpu, ok := kn.Status.Allocatable[GPUResourceName]; ok {
			if slots, ok := gpu.AsInt64(); ok && slots > 0 {
				ids := make([]Instance, 0, slots)
				for i := int64(0); i < slots; i++ {
					ids = append(ids, Instance{ID: kn.Name + "-gpu-" + strconv.FormatInt(i, 10), Slots: 1})
				}
				n.Resources["gpus"] = ids
			}
		}

		nodes = append(nodes, n)
	}
	return nodes, nil
}
