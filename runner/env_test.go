package runner

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	canary "github.com/sandialabs/canary/api/v1"
	"github.com/sandialabs/canary/resourcepool"
)

func envValue(env []string, key string) (string, bool) {
	for _, kv := range env {
		if len(kv) > len(key) && kv[:len(key)] == key && kv[len(key)] == '=' {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

var _ = Describe("BuildEnv", func() {
	It("applies session then case modifications in order", func() {
		session := canary.EnvMod{Set: map[string]string{"A": "session"}}
		caseMod := canary.EnvMod{Set: map[string]string{"A": "case"}}
		env := BuildEnv(nil, session, caseMod, nil, "CANARY")

		v, ok := envValue(env, "A")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("case"))
	})

	It("unsets variables from the inherited environment", func() {
		env := BuildEnv([]string{"REMOVE_ME=1"}, canary.EnvMod{}, canary.EnvMod{Unset: []string{"REMOVE_ME"}}, nil, "CANARY")
		_, ok := envValue(env, "REMOVE_ME")
		Expect(ok).To(BeFalse())
	})

	It("prepends and appends to path-like variables", func() {
		env := BuildEnv([]string{"PATH=/usr/bin"}, canary.EnvMod{}, canary.EnvMod{
			PrependPath: map[string]string{"PATH": "/opt/bin"},
			AppendPath:  map[string]string{"PATH": "/usr/local/bin"},
		}, nil, "CANARY")
		v, _ := envValue(env, "PATH")
		Expect(v).To(Equal("/opt/bin:/usr/bin:/usr/local/bin"))
	})

	It("substitutes %(type_ids)s placeholders and exports PREFIX_TYPE_IDS", func() {
		alloc := &resourcepool.Allocation{Grants: []resourcepool.Grant{
			{NodeID: "0", Type: "gpus", InstanceID: "1", Slots: 1},
			{NodeID: "0", Type: "gpus", InstanceID: "0", Slots: 1},
		}}
		env := BuildEnv(nil, canary.EnvMod{}, canary.EnvMod{
			Set: map[string]string{"CUDA_VISIBLE_DEVICES": "%(gpus_ids)s"},
		}, alloc, "canary")

		v, ok := envValue(env, "CUDA_VISIBLE_DEVICES")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("0,1"))

		exported, ok := envValue(env, "CANARY_GPUS_IDS")
		Expect(ok).To(BeTrue())
		Expect(exported).To(Equal("0,1"))
	})
})
