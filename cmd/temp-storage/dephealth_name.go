package main

import "regexp"

var (
	// <deployment>-<replicaset hash>-<pod suffix>
	deploymentPod = regexp.MustCompile(`^(.+)-[a-z0-9]{6,10}-[a-z0-9]{5}$`)
	// <statefulset>-<ordinal>
	statefulSetPod = regexp.MustCompile(`^(.+)-[0-9]+$`)
)

// parseOwnerName извлекает имя владельца пода (Deployment или StatefulSet)
// из hostname. Если шаблон не распознан - возвращает hostname как есть.
func parseOwnerName(hostname string) string {
	if m := deploymentPod.FindStringSubmatch(hostname); m != nil {
		return m[1]
	}
	if m := statefulSetPod.FindStringSubmatch(hostname); m != nil {
		return m[1]
	}
	return hostname
}
