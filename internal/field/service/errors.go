package service

import (
	"errors"
)

// 领域错误分类。存储层错误不直接外漏，各服务统一翻译成下列错误再返回。
var (
	// ErrValidation 载荷非法（互斥字段同时给出/都缺失等）
	ErrValidation = errors.New("validation error")
	// ErrInvalidTransition 目标状态不在当前状态的邻接表内
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrPreconditionNotMet 终态前置条件不满足（缺签名或设备未到终态）
	ErrPreconditionNotMet = errors.New("transition precondition not met")
	// ErrDuplicateEquipment 设备已挂在该工单上
	ErrDuplicateEquipment = errors.New("equipment already attached to order")
	// ErrInvalidSubState 设备子状态流转非法
	ErrInvalidSubState = errors.New("invalid equipment sub-state transition")
	// ErrConflict 并发写冲突（乐观版本号不匹配），调用方重读后重试
	ErrConflict = errors.New("concurrent modification conflict")
)
