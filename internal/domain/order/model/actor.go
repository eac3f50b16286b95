package model

import "fmt"

// ActorKind 操作者类型
type ActorKind string

const (
	ActorCustomer     ActorKind = "customer"
	ActorProfessional ActorKind = "professional"
	ActorShop         ActorKind = "shop"
	ActorAdmin        ActorKind = "admin"
	ActorSystem       ActorKind = "system"
)

func (k ActorKind) IsValid() bool {
	switch k {
	case ActorCustomer, ActorProfessional, ActorShop, ActorAdmin, ActorSystem:
		return true
	}
	return false
}

// Actor 审计用的操作者
type Actor struct {
	Kind ActorKind `gorm:"type:varchar(20)" json:"kind"`
	Ref  string    `gorm:"type:varchar(64)" json:"ref,omitempty"`
	Name string    `gorm:"type:varchar(128)" json:"name,omitempty"`
}

// SystemActor 系统自身触发的操作
var SystemActor = Actor{Kind: ActorSystem, Name: "system"}

func (a Actor) String() string {
	if a.Name != "" {
		return fmt.Sprintf("%s:%s", a.Kind, a.Name)
	}
	if a.Ref != "" {
		return fmt.Sprintf("%s:%s", a.Kind, a.Ref)
	}
	return string(a.Kind)
}

// CancelSource 由操作者推导取消来源，系统操作者没有对应来源
func (a Actor) CancelSource() (CancelSource, bool) {
	switch a.Kind {
	case ActorShop:
		return CancelSourceShop, true
	case ActorAdmin:
		return CancelSourceAdmin, true
	case ActorCustomer:
		return CancelSourceCustomer, true
	case ActorProfessional:
		return CancelSourceProfessional, true
	}
	return "", false
}
